package main

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/feedback_management/configs"
	"github.com/feedback_management/pkg/db"
)

func NewMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := db.InitDB(configs.AppConfig.Database); err != nil {
				return errors.WithMessage(err, "migrate database")
			}
			defer db.CloseDB()
			log.Info("database schema is up to date")
			return nil
		},
	}
}
