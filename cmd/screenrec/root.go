package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app holds what every subcommand shares.
type app struct {
	v   *viper.Viper
	log *logrus.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New(), log: logrus.New()}

	var configFile string
	rootCmd := &cobra.Command{
		Use:   "screenrec",
		Short: "Record the screen and microphone",
		Long: `screenrec captures the screen and, optionally, a microphone, encodes
them as H.264 and PCM and writes one MP4 or Matroska file. Recording is
controlled interactively with start, pause, resume and stop.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.loadConfig(configFile); err != nil {
				return err
			}
			return a.setupLogging()
		},
	}
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate(fullVersion() + "\n")

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default $XDG_CONFIG_HOME/screenrec/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level: debug, info, warn, error")
	a.v.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(newRecordCmd(a))
	rootCmd.AddCommand(newDoctorCmd(a))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// loadConfig reads the config file, if any, and the SCREENREC_ environment.
func (a *app) loadConfig(path string) error {
	a.v.SetEnvPrefix("screenrec")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	a.v.AutomaticEnv()

	if path != "" {
		a.v.SetConfigFile(path)
	} else {
		a.v.SetConfigName("config")
		a.v.SetConfigType("yaml")
		a.v.AddConfigPath(filepath.Join(xdg.ConfigHome, "screenrec"))
		a.v.AddConfigPath(".")
	}
	if err := a.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

// setupLogging sends logs to stderr so prompts on stdout stay readable.
func (a *app) setupLogging() error {
	level, err := logrus.ParseLevel(a.v.GetString("log_level"))
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	a.log.SetOutput(os.Stderr)
	a.log.SetLevel(level)
	a.log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return nil
}
