package main

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"tomorecon/pkg/config"
)

// Version is the tomorecon release.
const Version = "0.3.0"

var (
	configFile string

	// cfg is loaded by the root command before any subcommand runs
	cfg *config.Config
)

// Root is the main command.
var Root = &cobra.Command{
	Use:   "tomorecon",
	Short: "Parallel-beam tomography reconstruction.",
	Long: `tomorecon turns a parallel-beam tomography acquisition into a volume of
          reconstructed slices. Settings are read from a YAML configuration file;
          see "tomorecon mkconf".`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return startup(configFile)
	},
}

func init() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	Root.PersistentFlags().StringVar(&configFile, "config", "./tomorecon.yaml", "configuration file location")
	Root.AddCommand(versionCmd, mkconfCmd, confCmd, runCmd, replayCmd)
}

// startup loads the configuration and sets the log level from it.
func startup(path string) error {
	var err error
	if cfg, err = config.LoadConfig(path); err != nil {
		return err
	}
	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("logging level: %w", err)
	}
	logrus.SetLevel(level)
	logrus.WithField("config", path).Debug("configuration loaded")
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of tomorecon",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tomorecon v%s\n", Version)
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
}

var mkconfCmd = &cobra.Command{
	Use:   "mkconf",
	Short: "Write a configuration file holding the default settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(configFile); err == nil {
			return fmt.Errorf("%s already exists", configFile)
		}
		if err := config.CreateDefaultConfigFile(configFile); err != nil {
			return err
		}
		logrus.WithField("config", configFile).Info("default configuration written")
		return nil
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
}

var confCmd = &cobra.Command{
	Use:   "conf",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}
