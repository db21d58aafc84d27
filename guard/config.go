package guard

import "time"

// Config holds the security guard settings.
type Config struct {
	// RateLimitCapacity is the token bucket capacity per source address.
	RateLimitCapacity int `mapstructure:"rate-limit-capacity"`
	// RateLimitRefill is the bucket refill rate in tokens per second.
	RateLimitRefill float64 `mapstructure:"rate-limit-refill"`
	// StrikeThreshold is the number of strikes within StrikeWindow that
	// gets an address blacklisted.
	StrikeThreshold int `mapstructure:"strike-threshold"`
	// StrikeWindow is the sliding window strikes are counted over.
	StrikeWindow time.Duration `mapstructure:"strike-window"`
	// BlacklistDuration is how long a blacklisted address stays rejected.
	BlacklistDuration time.Duration `mapstructure:"blacklist-duration"`
	// MaxSessions caps concurrent sessions across all peers.
	MaxSessions int `mapstructure:"max-sessions"`
	// MaxSessionsPerAddr caps concurrent sessions per source address.
	MaxSessionsPerAddr int `mapstructure:"max-sessions-per-addr"`
	// SessionTTL is the fixed time-to-live of a session.
	SessionTTL time.Duration `mapstructure:"session-ttl"`
	// StaleTimeout evicts sessions with no traffic for this long.
	StaleTimeout time.Duration `mapstructure:"stale-timeout"`
	// SweepInterval is how often the background sweep runs.
	SweepInterval time.Duration `mapstructure:"sweep-interval"`
	// MaxMessageSize caps the size of a single wire message in bytes.
	MaxMessageSize int `mapstructure:"max-message-size"`
}

// DefaultConfig returns the guard defaults.
func DefaultConfig() Config {
	return Config{
		RateLimitCapacity:  100,
		RateLimitRefill:    100.0 / 60.0,
		StrikeThreshold:    5,
		StrikeWindow:       time.Minute,
		BlacklistDuration:  30 * time.Minute,
		MaxSessions:        10,
		MaxSessionsPerAddr: 2,
		SessionTTL:         time.Hour,
		StaleTimeout:       5 * time.Minute,
		SweepInterval:      time.Minute,
		MaxMessageSize:     1 << 20,
	}
}
