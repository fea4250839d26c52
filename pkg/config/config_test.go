package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "reject", cfg.Indexer.DuplicatePolicy)
	assert.Equal(t, "ordinal", cfg.Indexer.PositionUnit)
	assert.Equal(t, 4, cfg.Indexer.Workers)
	assert.Equal(t, "document-ingest", cfg.Kafka.IngestTopic)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kensaku.yaml")
	yml := `
indexer:
  dataDir: /tmp/ks
  segmentMaxSize: 1024
  flushInterval: 5s
  workers: 2
  duplicatePolicy: merge
  positionUnit: offset
logging:
  level: debug
  format: text
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/ks", cfg.Indexer.DataDir)
	assert.Equal(t, int64(1024), cfg.Indexer.SegmentMaxSize)
	assert.Equal(t, 5*time.Second, cfg.Indexer.FlushInterval)
	assert.Equal(t, "merge", cfg.Indexer.DuplicatePolicy)
	assert.Equal(t, "offset", cfg.Indexer.PositionUnit)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// untouched sections keep their defaults
	assert.Equal(t, 5432, cfg.Postgres.Port)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("KS_KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("KS_INDEXER_DUPLICATE_POLICY", "merge")
	t.Setenv("KS_REDIS_ENABLED", "false")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "merge", cfg.Indexer.DuplicatePolicy)
	assert.False(t, cfg.Redis.Enabled)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown policy", func(c *Config) { c.Indexer.DuplicatePolicy = "overwrite" }, `indexer.duplicatePolicy: unknown duplicate policy "overwrite"`},
		{"unknown unit", func(c *Config) { c.Indexer.PositionUnit = "rune" }, `indexer.positionUnit: unknown position unit "rune"`},
		{"zero workers", func(c *Config) { c.Indexer.Workers = 0 }, "indexer.workers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestValidateAcceptsEveryPolicyAndUnit(t *testing.T) {
	for _, policy := range []string{"reject", "merge"} {
		for _, unit := range []string{"ordinal", "offset"} {
			cfg := Default()
			cfg.Indexer.DuplicatePolicy = policy
			cfg.Indexer.PositionUnit = unit
			assert.NoError(t, cfg.Validate(), "%s/%s", policy, unit)
		}
	}
}

func TestDSN(t *testing.T) {
	dsn := Default().Postgres.DSN()
	assert.Equal(t, "host=localhost port=5432 user=kensaku password=localdev dbname=kensaku sslmode=disable", dsn)
}
