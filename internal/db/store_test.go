package db_test

import (
	"context"
	"testing"
	"time"

	"github.com/EternisAI/silo-license/internal/db"
	"github.com/EternisAI/silo-license/internal/licenses"
	"github.com/EternisAI/silo-license/internal/licenses/storetest"
	"github.com/EternisAI/silo-license/systemtest/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = "licensing"

func TestPostgresStore(t *testing.T) {
	url := postgres.RunForTest(t)
	ctx := context.Background()

	require.NoError(t, db.RunMigrations(ctx, url, testSchema))
	// A second run must be a no-op.
	require.NoError(t, db.RunMigrations(ctx, url, testSchema))

	pool, err := db.InitDB(ctx, db.Config{Url: url, Schema: testSchema})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	storetest.Run(t, func(t *testing.T) licenses.Store {
		_, err := pool.Exec(ctx, "TRUNCATE usage_events, device_activations, licenses")
		require.NoError(t, err)
		return db.NewStore(pool)
	})

	t.Run("ActivationCountTracksRows", func(t *testing.T) {
		_, err := pool.Exec(ctx, "TRUNCATE usage_events, device_activations, licenses")
		require.NoError(t, err)

		store := db.NewStore(pool)
		lic := storetest.NewLicense("TST-CAFE-CAFE-CAFE", 2)
		require.NoError(t, store.CreateLicense(ctx, lic))

		engine := licenses.NewEngine(store, licenses.Config{})
		for _, device := range []string{"d1", "d1", "d2", "d3"} {
			_, err := engine.Activate(ctx, lic.Key, device, nil)
			require.NoError(t, err)
		}

		var count int32
		require.NoError(t, pool.QueryRow(ctx,
			"SELECT activation_count FROM licenses WHERE license_key = $1", lic.Key).Scan(&count))
		assert.Equal(t, int32(2), count)

		var rows int
		require.NoError(t, pool.QueryRow(ctx,
			"SELECT COUNT(*) FROM device_activations WHERE license_key = $1", lic.Key).Scan(&rows))
		assert.Equal(t, 2, rows)
	})
	t.Run("Int4Bounds", func(t *testing.T) {
		_, err := pool.Exec(ctx, "TRUNCATE usage_events, device_activations, licenses")
		require.NoError(t, err)

		store := db.NewStore(pool)
		huge := storetest.NewLicense("TST-BIG0-BIG0-BIG0", 1)
		huge.MaxActivations = 1<<32 + 1
		err = store.CreateLicense(ctx, huge)
		assert.True(t, licenses.IsValidationError(err))

		_, err = store.GetLicense(ctx, huge.Key)
		assert.ErrorIs(t, err, licenses.ErrNotFound)

		lic := storetest.NewLicense("TST-BIG1-BIG1-BIG1", 2)
		require.NoError(t, store.CreateLicense(ctx, lic))
		_, err = store.AppendActivation(ctx, lic.Key, licenses.DeviceActivation{DeviceID: "d1", ActivationDate: time.Now(), LastValidation: time.Now()}, 1<<32+1)
		require.NoError(t, err)

		list, total, err := store.ListLicenses(ctx, 10, 1<<40)
		require.NoError(t, err)
		assert.Empty(t, list)
		assert.Equal(t, int64(1), total)
	})
}
