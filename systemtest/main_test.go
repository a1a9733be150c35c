package systemtest

import (
	"context"
	"testing"

	internalhttp "github.com/EternisAI/silo-license/internal/api/http"
	"github.com/EternisAI/silo-license/internal/auth"
	"github.com/EternisAI/silo-license/internal/db"
	"github.com/EternisAI/silo-license/internal/licenses"
	"github.com/EternisAI/silo-license/internal/metrics"
	"github.com/EternisAI/silo-license/internal/receipt"
	"github.com/EternisAI/silo-license/systemtest/postgres"
	"github.com/EternisAI/silo-license/systemtest/tests"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

const (
	adminKey      = "system-admin-key"
	receiptSecret = "system-receipt-secret"
	schema        = "licensing"
)

func TestSystemIntegration(t *testing.T) {
	dbURL := postgres.RunForTest(t)
	ctx := context.Background()

	require.NoError(t, db.RunMigrations(ctx, dbURL, schema))
	pool, err := db.InitDB(ctx, db.Config{Url: dbURL, Schema: schema})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	store := db.NewStore(pool)
	signer, err := receipt.NewSigner(receipt.Config{Secret: receiptSecret})
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	internalhttp.SetupRoute(engine, &internalhttp.Services{
		Engine:      licenses.NewEngine(store, licenses.Config{}),
		Admin:       licenses.NewAdmin(store, licenses.Config{}),
		Recorder:    licenses.NewRecorder(store),
		Verifier:    auth.NewVerifier(adminKey, ""),
		Receipts:    signer,
		Metrics:     metrics.New(),
		StoreDriver: "postgres",
		StorePinger: store,
	})

	t.Run("HealthCheck", func(t *testing.T) { tests.TestHealthCheck(t, engine) })
	t.Run("Metrics", func(t *testing.T) { tests.TestMetricsEndpoint(t, engine) })
	t.Run("AdminAuth", func(t *testing.T) { tests.TestAdminAuth(t, engine, adminKey) })
	t.Run("LicenseLifecycle", func(t *testing.T) { tests.TestLicenseLifecycle(t, engine, adminKey, signer) })
	t.Run("ConcurrentActivation", func(t *testing.T) { tests.TestConcurrentActivation(t, engine, adminKey) })
	t.Run("AdminPaging", func(t *testing.T) { tests.TestAdminPaging(t, engine, adminKey) })
	t.Run("Usage", func(t *testing.T) { tests.TestUsage(t, engine, adminKey) })
}
