package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ownerHex = "0x47ac0Fb4F2D84898e4D9E7b4DaB3C24507a6D503"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STAKING_OWNER", ownerHex)

	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, uint64(1000), cfg.Reward.AnnualRateBps)
	assert.Equal(t, uint64(0), cfg.Refund.PenaltyBps)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Empty(t, cfg.Clickhouse.DSN)
	assert.Equal(t, ownerHex, cfg.OwnerAddress().Hex())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("STAKING_OWNER", ownerHex)
	t.Setenv("STAKING_STORAGE_BACKEND", "postgres")
	t.Setenv("STAKING_POSTGRES_DSN", "postgres://ledger@localhost/ledger")
	t.Setenv("STAKING_REFUND_PENALTY_BPS", "250")
	t.Setenv("STAKING_HTTP_ADDR", ":9090")

	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, BackendPostgres, cfg.Storage.Backend)
	assert.Equal(t, "postgres://ledger@localhost/ledger", cfg.Postgres.DSN)
	assert.Equal(t, uint64(250), cfg.Refund.PenaltyBps)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "staking.yaml")
	content := `
owner: "` + ownerHex + `"
reward:
  annual_rate_bps: 500
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(New(), path)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), cfg.Reward.AnnualRateBps)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			HTTP:    HTTPConfig{Addr: ":8080"},
			Storage: StorageConfig{Backend: BackendMemory},
			Owner:   ownerHex,
			Custody: CustodyConfig{Address: "0x000000000000000000000000000000000000c0de"},
			Reward:  RewardConfig{AnnualRateBps: 1000},
		}
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"missing owner", func(c *Config) { c.Owner = "" }},
		{"zero owner", func(c *Config) { c.Owner = "0x0000000000000000000000000000000000000000" }},
		{"bad custody", func(c *Config) { c.Custody.Address = "vault" }},
		{"custody is owner", func(c *Config) { c.Custody.Address = ownerHex }},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "sqlite" }},
		{"postgres without dsn", func(c *Config) { c.Storage.Backend = BackendPostgres }},
		{"zero rate", func(c *Config) { c.Reward.AnnualRateBps = 0 }},
		{"penalty above 100%", func(c *Config) { c.Refund.PenaltyBps = 10001 }},
		{"no http addr", func(c *Config) { c.HTTP.Addr = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}
