// Package cmd is the base package for the executables built from marksync.
package cmd

import (
	"github.com/spf13/pflag"

	"github.com/marksync/marksync/config"
)

var (
	// Version is the app's semantic version. Designed to be overwritten by make.
	Version string

	// Branch is the git branch used to build the app. Designed to be overwritten by make.
	Branch string

	// Commit is the git commit used to build the app. Designed to be overwritten by make.
	Commit string
)

// AddFlags binds the CLI flags to cfg and returns a pointer to the config
// path flag value.
func AddFlags(flagSet *pflag.FlagSet, cfg *config.Config) (configPath *string) {
	configPath = flagSet.StringP("config", "c", "", "Set load configuration from file")

	/** ======================== BaseConfig Flags ========================== **/
	flagSet.StringVar(&cfg.InstanceName, "instance-name",
		cfg.InstanceName, "human-readable name advertised to peers")
	flagSet.Uint16Var(&cfg.ListenPort, "listen-port",
		cfg.ListenPort, "TCP port the secure channel listens on")
	flagSet.StringVar(&cfg.Browser, "browser",
		cfg.Browser, "browser whose bookmark collection this instance syncs")
	flagSet.StringVar(&cfg.KeyFile, "key-file",
		cfg.KeyFile, "path to the long-term private key; empty generates an ephemeral key")
	flagSet.BoolVar(&cfg.CollectMetrics, "metrics",
		cfg.CollectMetrics, "collect node metrics")
	flagSet.IntVar(&cfg.MetricsPort, "metrics-port",
		cfg.MetricsPort, "metric server port")

	/** ======================== Discovery Flags ========================== **/
	flagSet.Uint16Var(&cfg.Discovery.Port, "discovery-port",
		cfg.Discovery.Port, "UDP port for peer announcements")
	flagSet.DurationVar(&cfg.Discovery.BroadcastInterval, "broadcast-interval",
		cfg.Discovery.BroadcastInterval, "interval between presence announcements")
	flagSet.DurationVar(&cfg.Discovery.LivenessWindow, "liveness-window",
		cfg.Discovery.LivenessWindow, "silence period after which a peer is considered gone")

	/** ======================== Guard Flags ========================== **/
	flagSet.IntVar(&cfg.Guard.MaxSessions, "max-sessions",
		cfg.Guard.MaxSessions, "total concurrent authenticated sessions allowed")
	flagSet.IntVar(&cfg.Guard.MaxMessageSize, "max-message-size",
		cfg.Guard.MaxMessageSize, "largest accepted message in bytes")
	flagSet.DurationVar(&cfg.Guard.BlacklistDuration, "blacklist-duration",
		cfg.Guard.BlacklistDuration, "how long a misbehaving address stays blocked")

	/** ======================== Sync Flags ========================== **/
	flagSet.Float64Var(&cfg.Sync.FuzzyThreshold, "fuzzy-threshold",
		cfg.Sync.FuzzyThreshold, "similarity ratio above which URLs are considered fuzzy matches")
	flagSet.StringVar((*string)(&cfg.Sync.TieBreak), "tie-break",
		string(cfg.Sync.TieBreak), "which copy wins a timestamp tie: local or remote")
	flagSet.DurationVar(&cfg.Sync.RequestTimeout, "sync-request-timeout",
		cfg.Sync.RequestTimeout, "timeout for a single sync request")

	/** ======================== Logging Flags ========================== **/
	flagSet.StringVar(&cfg.Logging.AppLoggerLevel, "log-level",
		cfg.Logging.AppLoggerLevel, "logging level for the app logger")

	return configPath
}
