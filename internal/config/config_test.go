package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medadmin/internal/schedule"
	"medadmin/internal/store"
)

const minimal = `
partitions:
  - {index: 0, base_url: "memory://0"}
  - {index: 1, base_url: "memory://1"}
  - {index: 2, base_url: "memory://2"}
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimal))
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.StoreTimeout())
	assert.Equal(t, 20.0, cfg.Store.RequestsPerSecond)
	assert.Equal(t, 5, cfg.Store.Burst)
	assert.Equal(t, schedule.DefaultSlots, cfg.Booking.Slots)
	assert.Equal(t, schedule.Rules{Cutoff: "16:00"}, cfg.Rules())
	assert.Equal(t, "data/medadmin.db", cfg.Journal.Path)
	assert.Equal(t, filepath.Join("data", "backups"), cfg.Journal.Backup.Path)
	assert.Equal(t, 24*time.Hour, cfg.BackupInterval())
	assert.Equal(t, 30*time.Second, cfg.CacheTTL())
	assert.Equal(t, "exports", cfg.Export.Dir)
	assert.Zero(t, cfg.Monitoring.HealthCheckPort)
	assert.Equal(t, 9090, cfg.Monitoring.PrometheusPort)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestParse_ExpandsEnv(t *testing.T) {
	t.Setenv("SHARD0", "https://shard-0.example.com")
	t.Setenv("SHARD0_AUTH", "token")

	cfg, err := Parse([]byte(`
partitions:
  - {index: 0, base_url: "${SHARD0}", auth: "${SHARD0_AUTH}"}
booking:
  slots: ["10:00", "11:00"]
  cutoff: "12:30"
  release_own_slot_on_change: true
`))
	require.NoError(t, err)
	assert.Equal(t, []store.Endpoint{{Index: 0, BaseURL: "https://shard-0.example.com", Auth: "token"}}, cfg.Endpoints())
	assert.Equal(t, []string{"10:00", "11:00"}, cfg.Booking.Slots)
	assert.Equal(t, schedule.Rules{Cutoff: "12:30", ReleaseOwnSlotOnChange: true}, cfg.Rules())
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"no partitions", `log: {level: debug}`, "no partitions"},
		{"empty url", `partitions: [{index: 0, base_url: ""}]`, "empty base_url"},
		{"duplicate", `partitions: [{index: 0, base_url: a}, {index: 0, base_url: b}]`, "duplicate"},
		{"gap", `partitions: [{index: 0, base_url: a}, {index: 2, base_url: b}]`, "contiguous"},
		{"bad slot", minimal + "booking: {slots: [\"9am\"]}", "booking.slots"},
		{"bad cutoff", minimal + "booking: {cutoff: \"25:00\"}", "booking.cutoff"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimal), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Partitions, 3)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestPathFromEnv(t *testing.T) {
	t.Setenv("MEDADMIN_CONFIG_PATH", "")
	assert.Equal(t, DefaultPath, PathFromEnv())

	t.Setenv("MEDADMIN_CONFIG_PATH", "/etc/medadmin.yaml")
	assert.Equal(t, "/etc/medadmin.yaml", PathFromEnv())
}
