package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePolicy(t *testing.T) {
	assert.NoError(t, validatePolicy(DefaultPolicy()))

	p := DefaultPolicy()
	p.Labor.DailyOvertimeThreshold = 0
	assert.Error(t, validatePolicy(p))

	p = DefaultPolicy()
	p.Labor.MaxHoursPerEntry = 4
	assert.Error(t, validatePolicy(p))

	p = DefaultPolicy()
	p.Sync.MaxAttempts = 0
	assert.Error(t, validatePolicy(p))
}

func TestNewPolicyHolderDefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	holder, err := NewPolicyHolder()
	assert.NoError(t, err)
	assert.Equal(t, 8.0, holder.Get().Labor.DailyOvertimeThreshold)
	assert.Equal(t, 5, holder.Get().Sync.MaxAttempts)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("DATABASE_TYPE", "sqlite")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("VIEW_CACHE_TTL", "30s")

	cfg := Load()
	assert.Equal(t, "sqlite", cfg.DBType)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, "30s", cfg.Redis.ViewTTL.String())
}
