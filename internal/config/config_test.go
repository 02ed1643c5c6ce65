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

	assert.Equal(t, 24*time.Hour, cfg.Sync.MessageTTL)
	assert.Equal(t, 2*time.Second, cfg.Sync.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.Sync.SweepInterval)
	assert.Equal(t, 10*time.Second, cfg.Presence.HeartbeatInterval)
	assert.Equal(t, 30*time.Second, cfg.Presence.OnlineWindow)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, "local", cfg.Relay.Backend)
	assert.Equal(t, int64(10<<20), cfg.Plans.Free)
	assert.Equal(t, int64(5<<20), cfg.Plans.Guest)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MESSAGE_TTL", "1h")
	t.Setenv("STORE_BACKEND", "REDIS")
	t.Setenv("RELAY_URL", "http://relay:9000/")
	t.Setenv("PLAN_LIMIT_FREE", "1024")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, time.Hour, cfg.Sync.MessageTTL)
	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, "http://relay:9000", cfg.Relay.URL)
	assert.Equal(t, int64(1024), cfg.Plans.Free)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown store":          {"STORE_BACKEND": "sqlite"},
		"file blobs no password": {"BLOB_BACKEND": "file"},
		"amqp without url":       {"RELAY_BACKEND": "amqp"},
		"narrow online window":   {"HEARTBEAT_INTERVAL": "10s", "ONLINE_WINDOW": "15s"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
