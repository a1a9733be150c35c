package licenses

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
)

const (
	keyGroups     = 3
	bytesPerGroup = 2 // rendered as 4 hex digits
)

// KeyGenerator produces human-readable license keys of the form
// PREFIX-XXXX-XXXX-XXXX. It does not guarantee uniqueness; the store's
// unique key constraint does.
type KeyGenerator struct {
	Prefix string
	rand   io.Reader
}

func NewKeyGenerator(prefix string) *KeyGenerator {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &KeyGenerator{Prefix: prefix, rand: rand.Reader}
}

// Generate creates a new license key from crypto/rand.
func (g *KeyGenerator) Generate() (string, error) {
	src := g.rand
	if src == nil {
		src = rand.Reader
	}

	buf := make([]byte, keyGroups*bytesPerGroup)
	if _, err := io.ReadFull(src, buf); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(g.Prefix)
	for i := 0; i < keyGroups; i++ {
		group := buf[i*bytesPerGroup : (i+1)*bytesPerGroup]
		fmt.Fprintf(&sb, "-%02X%02X", group[0], group[1])
	}
	return sb.String(), nil
}
