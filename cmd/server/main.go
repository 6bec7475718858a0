package main

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/feedback_management/configs"
)

var (
	logLevel   = "info"
	logFormat  = "text"
	configPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "feedback-server",
	Short: "Customer feedback collection with AI replies and escalation",
	Long: `feedback-server collects customer feedback, drafts AI replies according to
each company's response policy, escalates negative feedback to staff and
imports Google reviews.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := log.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		log.SetLevel(level)
		if logFormat == "json" {
			log.SetFormatter(&log.JSONFormatter{})
		}
		log.Debug("debug logging enabled")
		return configs.LoadConfig(configPath)
	},
}

func main() {
	formatter := new(log.TextFormatter)
	formatter.TimestampFormat = "2006-01-02T15:04:05.999Z07:00"
	formatter.FullTimestamp = true
	log.SetFormatter(formatter)

	rootCmd.AddCommand(
		NewServeCommand(),
		NewWorkerCommand(),
		NewMigrateCommand(),
		NewSendRemindersCommand(),
		NewSyncReviewsCommand(),
		NewHashPasswordCommand(),
	)

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", logLevel,
		"Log level (trace,debug,info,warn,error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", logFormat, "Log format (text,json)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file (default $APP_CONFIG_FILE)")

	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Fatal("could not execute root command")
	}
}
