package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
database:
  driver: mysql
  host: localhost
  port: 3306
  username: lotto
  password: ${LOTTO_DB_PASSWORD}
  database: thai_lotto
api:
  url: https://example.com/api/lotto
  retry_count: 3
app:
  log_level: debug
`

func TestParseAppliesDefaultsAndExpandsEnv(t *testing.T) {
	t.Setenv("LOTTO_DB_PASSWORD", "s3cret")

	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Database.Password)
	assert.Equal(t, 10, cfg.Database.MaxOpenConns)
	assert.Equal(t, time.Hour, cfg.Database.ConnMaxLifetime)
	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, "text", cfg.App.LogFormat)
	assert.Equal(t, "30 16 1,16 * *", cfg.App.Schedule)
	assert.Equal(t, "Asia/Bangkok", cfg.App.Timezone)
	assert.Equal(t, 10*time.Second, cfg.API.Timeout)
	assert.Equal(t, "lotto:s3cret@tcp(localhost:3306)/thai_lotto?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Database.GetDSN())
}

func TestParseRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "unknown log level",
			yaml: `
database: {driver: sqlite, path: /tmp/lotto.db}
api: {url: "https://example.com"}
app: {log_level: verbose}
`,
		},
		{
			name: "bad cron schedule",
			yaml: `
database: {driver: sqlite, path: /tmp/lotto.db}
api: {url: "https://example.com"}
app: {schedule: "every day"}
`,
		},
		{
			name: "mysql without host",
			yaml: `
database: {driver: mysql, port: 3306, username: u, database: d}
api: {url: "https://example.com"}
`,
		},
		{
			name: "sqlite without path",
			yaml: `
database: {driver: sqlite}
api: {url: "https://example.com"}
`,
		},
		{
			name: "telegram enabled without token",
			yaml: `
database: {driver: sqlite, path: /tmp/lotto.db}
api: {url: "https://example.com"}
telegram: {enabled: true}
`,
		},
		{
			name: "unknown timezone",
			yaml: `
database: {driver: sqlite, path: /tmp/lotto.db}
api: {url: "https://example.com"}
app: {timezone: "Mars/Olympus"}
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
database: {driver: sqlite, path: ` + filepath.Join(dir, "lotto.db") + `}
api: {url: "https://example.com/results"}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, filepath.Join(dir, "lotto.db"), cfg.Database.GetDSN())
	assert.Equal(t, "Asia/Bangkok", cfg.App.Location().String())

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
