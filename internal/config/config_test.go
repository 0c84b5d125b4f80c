package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("WORKFLOW_STEP_DELAY", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, 800*time.Millisecond, cfg.Workflow.StepDelay)
	assert.Equal(t, 0.1, cfg.Workflow.FailureRate)
	assert.Equal(t, "RPA Bot", cfg.Workflow.Operator)
	assert.Equal(t, "8080", cfg.Server.Port)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "Redis")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("WORKFLOW_STEP_DELAY", "10ms")
	t.Setenv("WORKFLOW_FAILURE_RATE", "0.5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BackendRedis, cfg.Storage.Backend)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, 10*time.Millisecond, cfg.Workflow.StepDelay)
	assert.Equal(t, 0.5, cfg.Workflow.FailureRate)
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("REDIS_POOL_SIZE", "lots")
	t.Setenv("SERVER_READ_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Redis.PoolSize)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "localstorage")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidateFailureRate(t *testing.T) {
	cfg := &Config{
		Storage:  StorageConfig{Backend: BackendMemory},
		Workflow: WorkflowConfig{FailureRate: 1.5},
	}
	assert.Error(t, cfg.Validate())
}
