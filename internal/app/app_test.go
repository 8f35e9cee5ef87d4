package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"instrument-rental-backend/internal/config"
	"instrument-rental-backend/internal/domain"
	"instrument-rental-backend/internal/repository/memory"
)

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{Database: config.DatabaseConfig{Driver: config.DriverMemory}}
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestNew_MemoryBackend(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, memoryConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, a.Close()) })

	assert.IsType(t, &memory.Store{}, a.Store)
	require.NoError(t, a.Store.Ping(ctx))

	tool := &domain.Tool{Name: "Marimba", Category: "Percussion", PricePerDayCents: 4000, TotalStock: 1, InStock: 1}
	require.NoError(t, a.Tools.Create(ctx, tool))
	got, err := a.Tools.Get(ctx, tool.ID)
	require.NoError(t, err)
	assert.Equal(t, "Marimba", got.Name)
	assert.NotNil(t, a.Jobs)
}

func TestNew_RejectsBadTiers(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Pricing.Tiers = nil
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}
