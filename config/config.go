// Package config contains marksync node configuration definitions.
package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/marksync/marksync/discovery"
	"github.com/marksync/marksync/guard"
	"github.com/marksync/marksync/p2p/handshake"
	"github.com/marksync/marksync/syncer"
)

const defaultConfigFileName = "./marksync.toml"

// DefaultListenPort is the well-known TCP port peers connect to.
const DefaultListenPort = 8765

// Config defines the top level configuration for a marksync node.
type Config struct {
	BaseConfig `mapstructure:"main"`
	Discovery  discovery.Config `mapstructure:"discovery"`
	Guard      guard.Config     `mapstructure:"guard"`
	Handshake  handshake.Config `mapstructure:"handshake"`
	Sync       syncer.Config    `mapstructure:"sync"`
	Logging    LoggerConfig     `mapstructure:"logging"`
}

// BaseConfig defines the default configuration options for the marksync app.
type BaseConfig struct {
	ConfigFile string `mapstructure:"config"`

	// InstanceName is the human-readable name advertised in announcements.
	InstanceName string `mapstructure:"instance-name"`

	// ListenPort is the TCP port the secure channel listens on.
	ListenPort uint16 `mapstructure:"listen-port"`

	// Browser selects which browser's collection this instance works on.
	Browser string `mapstructure:"browser"`

	// KeyFile stores the long-term private key (base58). Empty generates
	// an ephemeral key pair on startup.
	KeyFile string `mapstructure:"key-file"`

	CollectMetrics bool `mapstructure:"metrics"`
	MetricsPort    int  `mapstructure:"metrics-port"`
}

// LoggerConfig holds the logging level for each module.
type LoggerConfig struct {
	AppLoggerLevel       string `mapstructure:"app"`
	P2PLoggerLevel       string `mapstructure:"p2p"`
	DiscoveryLoggerLevel string `mapstructure:"discovery"`
	GuardLoggerLevel     string `mapstructure:"guard"`
	SyncLoggerLevel      string `mapstructure:"sync"`
}

// DefaultConfig returns the default configuration for a marksync node.
func DefaultConfig() Config {
	return Config{
		BaseConfig: defaultBaseConfig(),
		Discovery:  discovery.DefaultConfig(),
		Guard:      guard.DefaultConfig(),
		Handshake:  handshake.DefaultConfig(),
		Sync:       syncer.DefaultConfig(),
		Logging:    defaultLoggingConfig(),
	}
}

func defaultLoggingConfig() LoggerConfig {
	return LoggerConfig{
		AppLoggerLevel:       "info",
		P2PLoggerLevel:       "info",
		DiscoveryLoggerLevel: "info",
		GuardLoggerLevel:     "info",
		SyncLoggerLevel:      "info",
	}
}

func defaultBaseConfig() BaseConfig {
	return BaseConfig{
		ConfigFile:     defaultConfigFileName,
		InstanceName:   "marksync",
		ListenPort:     DefaultListenPort,
		Browser:        "Chrome",
		CollectMetrics: false,
		MetricsPort:    1010,
	}
}

// LoadConfig reads the config file into vip. Missing non-default files fall
// back to the default location.
func LoadConfig(fileLocation string, vip *viper.Viper) error {
	if fileLocation == "" {
		fileLocation = defaultConfigFileName
	}

	vip.SetConfigFile(fileLocation)
	if err := vip.ReadInConfig(); err != nil {
		if fileLocation != defaultConfigFileName {
			vip.SetConfigFile(defaultConfigFileName)
			if err2 := vip.ReadInConfig(); err2 == nil {
				return nil
			}
		}
		return fmt.Errorf("read config file: %w", err)
	}
	return nil
}

// Unmarshal decodes vip into conf. Fields absent from the file keep their
// current values, so CLI flag bindings into conf survive the file load.
func Unmarshal(vip *viper.Viper, conf *Config) error {
	hook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := vip.Unmarshal(conf, viper.DecodeHook(hook)); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}
