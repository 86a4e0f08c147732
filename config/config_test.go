package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, int64(500*1024*1024), cfg.Recorder.SegmentMaxBytes)
	assert.Equal(t, 5*time.Second, cfg.Recorder.SizeCheckInterval)
	assert.Equal(t, 60*time.Second, cfg.Recorder.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.Recorder.CreditInterval)
	assert.Equal(t, "ffmpeg", cfg.Recorder.FFmpegCmd)
	assert.Equal(t, "yt-dlp", cfg.Recorder.ResolverCmd)
	assert.Equal(t,
		[]string{"chrome131", "chrome124", "chrome120", "chrome116", "chrome110"},
		cfg.Recorder.ProbeProfiles)
}

func TestRecorderEnvOverrides(t *testing.T) {
	t.Setenv("SEGMENT_MAX_BYTES", "1048576")
	t.Setenv("POLL_INTERVAL", "10s")
	t.Setenv("PROBE_PROFILES", "chrome131, chrome120")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(1048576), cfg.Recorder.SegmentMaxBytes)
	assert.Equal(t, 10*time.Second, cfg.Recorder.PollInterval)
	assert.Equal(t, []string{"chrome131", "chrome120"}, cfg.Recorder.ProbeProfiles)
}

func TestDatabaseDSN(t *testing.T) {
	c := DatabaseConfig{
		Host: "db", Port: "5432", User: "u", Password: "p", DBName: "recordbot", SSLMode: "disable",
	}
	assert.Equal(t, "postgres://u:p@db:5432/recordbot?sslmode=disable", c.DSN())

	c.URL = "postgres://u:p@db:5432/recordbot"
	assert.Equal(t, "postgres://u:p@db:5432/recordbot", c.DSN())
}

func TestStripePriceIDs(t *testing.T) {
	c := StripeConfig{Price2h: "price_a", Price5h: "price_b", Price20h: "price_c"}
	ids := c.PriceIDs()
	assert.Equal(t, "price_a", ids["rb_plan_2h"])
	assert.Equal(t, "price_b", ids["rb_plan_5h"])
	assert.Equal(t, "price_c", ids["rb_plan_20h"])
}
