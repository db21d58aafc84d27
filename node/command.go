package node

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/marksync/marksync/cmd"
	"github.com/marksync/marksync/config"
	"github.com/marksync/marksync/log"
)

// GetCommand returns the root marksync command.
func GetCommand() *cobra.Command {
	conf := config.DefaultConfig()
	var configPath *string
	c := &cobra.Command{
		Use:   "marksync",
		Short: "sync bookmarks with peers on the local network",
		RunE: func(c *cobra.Command, args []string) error {
			if err := configure(c, *configPath, &conf); err != nil {
				return err
			}

			level, err := zap.ParseAtomicLevel(conf.Logging.AppLoggerLevel)
			if err != nil {
				return fmt.Errorf("parsing log level: %w", err)
			}
			logger := log.NewWithLevel("marksync", level,
				zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()))

			app, err := New(conf, WithLog(logger))
			if err != nil {
				return fmt.Errorf("initializing app: %w", err)
			}

			// os.Interrupt for all systems, syscall.SIGTERM is mainly for docker.
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			// Don't print usage on error from this point forward
			c.SilenceUsage = true

			if err := app.LoadLocalCollection(ctx); err != nil {
				logger.With().Warning("starting with an empty collection", log.Err(err))
			}

			// This blocks until the context is finished or until an error is produced
			return app.Start(ctx)
		},
	}

	configPath = cmd.AddFlags(c.PersistentFlags(), &conf)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version info",
		Run: func(c *cobra.Command, args []string) {
			fmt.Print(cmd.Version)
			if cmd.Commit != "" {
				fmt.Print("+" + cmd.Commit)
			}
			fmt.Println()
		},
	}
	c.AddCommand(versionCmd)

	return c
}

// configure loads the config file and reapplies CLI args on top of it.
func configure(c *cobra.Command, configPath string, conf *config.Config) error {
	vip := viper.New()
	if err := config.LoadConfig(configPath, vip); err != nil {
		if configPath != "" {
			return fmt.Errorf("loading config: %w", err)
		}
	} else if err := config.Unmarshal(vip, conf); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := c.ParseFlags(os.Args[1:]); err != nil {
		return fmt.Errorf("parsing flags: %w", err)
	}
	return nil
}
