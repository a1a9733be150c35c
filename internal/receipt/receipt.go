// Package receipt issues and verifies signed activation receipts: short-lived
// HS256 tokens that let a client prove a successful validation offline.
package receipt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultIssuer = "silo-license"
	DefaultTTL    = 7 * 24 * time.Hour
)

var ErrNoSecret = errors.New("receipt secret is not configured")

type Config struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type Claims struct {
	LicenseKey string `json:"license_key"`
	DeviceID   string `json:"device_id"`
	PlanType   string `json:"plan_type,omitempty"`
	jwt.RegisteredClaims
}

type Signer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewSigner(cfg Config) (*Signer, error) {
	if cfg.Secret == "" {
		return nil, ErrNoSecret
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	return &Signer{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    cfg.TTL,
		now:    time.Now,
	}, nil
}

// Issue signs a receipt for licenseKey/deviceID. The receipt never outlives
// the license: it expires at the earlier of licenseExpiry and now+TTL.
func (s *Signer) Issue(licenseKey, deviceID, planType string, licenseExpiry time.Time) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	if licenseExpiry.Before(expiresAt) {
		expiresAt = licenseExpiry
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		LicenseKey: licenseKey,
		DeviceID:   deviceID,
		PlanType:   planType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   deviceID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign receipt: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks signature, issuer and expiry and returns the claims.
func (s *Signer) Verify(raw string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid receipt claims")
	}
	return claims, nil
}
