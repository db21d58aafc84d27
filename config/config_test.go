package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	r := require.New(t)
	cfg := DefaultConfig()

	r.EqualValues(8765, cfg.ListenPort)
	r.EqualValues(8764, cfg.Discovery.Port)
	r.Equal(100, cfg.Guard.RateLimitCapacity)
	r.Equal(10, cfg.Guard.MaxSessions)
	r.Equal(1<<20, cfg.Guard.MaxMessageSize)
	r.Equal(0.8, cfg.Sync.FuzzyThreshold)
	r.EqualValues("local", cfg.Sync.TieBreak)
	r.Equal("info", cfg.Logging.AppLoggerLevel)
}

func TestLoadConfigMissingFile(t *testing.T) {
	vip := viper.New()
	err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"), vip)
	require.Error(t, err)
}

func TestUnmarshalOverridesDefaults(t *testing.T) {
	r := require.New(t)
	path := filepath.Join(t.TempDir(), "marksync.toml")
	content := `
[main]
listen-port = 9999
browser = "Firefox"

[discovery]
broadcast-interval = "30s"

[guard]
max-sessions = 3
blacklist-duration = "1h"

[sync]
fuzzy-threshold = 0.9
tie-break = "remote"
`
	r.NoError(os.WriteFile(path, []byte(content), 0o600))

	vip := viper.New()
	r.NoError(LoadConfig(path, vip))

	conf := DefaultConfig()
	r.NoError(Unmarshal(vip, &conf))

	r.EqualValues(9999, conf.ListenPort)
	r.Equal("Firefox", conf.Browser)
	r.Equal(30*time.Second, conf.Discovery.BroadcastInterval)
	r.Equal(3, conf.Guard.MaxSessions)
	r.Equal(time.Hour, conf.Guard.BlacklistDuration)
	r.Equal(0.9, conf.Sync.FuzzyThreshold)
	r.EqualValues("remote", conf.Sync.TieBreak)

	// untouched fields keep their defaults
	r.EqualValues(8764, conf.Discovery.Port)
	r.Equal(100, conf.Guard.RateLimitCapacity)
	r.Equal(30*time.Second, conf.Sync.RequestTimeout)
}
