package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "cfbmodel",
		Short:         "College football game predictions",
		Long:          "cfbmodel trains tree-ensemble models on College Football Data API statistics and predicts weekly game winners.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "Config file (default ~/.cfbmodel/config.toml)")
	flags.StringVar(&a.envFile, "env-file", "", "Load environment variables from this file instead of ./.env")
	flags.StringVar(&a.apiKeyFlag, "api-key", "", "College Football Data API key (overrides "+apiKeyEnv+")")
	flags.StringVar(&a.dbPath, "db", "", "SQLite database for the response cache and prediction history")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warning, error")
	flags.StringVar(&a.logFormat, "log-format", "", "Log format: text or json")

	root.AddCommand(
		newTrainCmd(a),
		newPredictCmd(a),
		newWeekCmd(a),
		newFetchCmd(a),
		newDemoCmd(a),
		newAnalyzeCmd(a),
		newHistoryCmd(a),
		newServeCmd(a),
		newConfigCmd(a),
		newVersionCmd(),
	)
	return root
}
