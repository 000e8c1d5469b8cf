package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/theblitlabs/fedsim/cmd/cli"
	"github.com/theblitlabs/fedsim/internal/core/config"
	"github.com/theblitlabs/fedsim/pkg/logger"
)

var (
	logMode    string
	configPath string
	sweepSeeds int
)

var rootCmd = &cobra.Command{
	Use:           "fedsim",
	Short:         "Federated learning simulator",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		switch logMode {
		case "debug", "pretty", "info", "prod", "test":
			logger.InitWithMode(logger.LogMode(logMode))
		default:
			logger.InitWithMode(logger.LogModePretty)
		}
		config.GetConfigManager().SetConfigPath(configPath)
	},
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a single simulation",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.RunSimulate(cmd.Flags())
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run the full experiment grid",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.RunSweep(cmd.Flags(), sweepSeeds)
	},
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Serve stored simulation runs over HTTP",
	Run: func(cmd *cobra.Command, args []string) {
		cli.RunServer()
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the run tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.RunMigrate()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logMode, "log", "pretty", "Log mode: debug, pretty, info, prod, test")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", ".env", "Path to the configuration file")

	cli.AddSimulationFlags(simulateCmd.Flags())
	cli.AddSimulationFlags(sweepCmd.Flags())
	sweepCmd.Flags().IntVar(&sweepSeeds, "seeds", 1, "Number of seeds per configuration")

	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(migrateCmd)
}
