package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/feedback_management/configs"
	"github.com/feedback_management/internal/models"
	"github.com/feedback_management/internal/repositories"
	"github.com/feedback_management/pkg/db"
)

type userFlags struct {
	Password      string
	Username      string
	CompanyID     string
	Role          string
	Email         string
	PlatformAdmin bool
}

// NewHashPasswordCommand 生成 bcrypt 哈希；指定 --username 时直接创建运营用户
func NewHashPasswordCommand() *cobra.Command {
	f := &userFlags{Role: models.RoleAdmin}

	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Hash a password, optionally creating an operator user with it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.Password == "" {
				return errors.New("--password is required")
			}
			hashed, err := bcrypt.GenerateFromPassword([]byte(f.Password), bcrypt.DefaultCost)
			if err != nil {
				return errors.Wrap(err, "hash password")
			}
			if f.Username == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Hashed Password: %s\n", hashed)
				return nil
			}

			if err := db.InitDB(configs.AppConfig.Database); err != nil {
				return errors.WithMessage(err, "initialize database")
			}
			defer db.CloseDB()

			user := &models.User{
				CompanyID:       f.CompanyID,
				Username:        f.Username,
				PasswordHash:    string(hashed),
				Role:            f.Role,
				IsPlatformAdmin: f.PlatformAdmin,
			}
			if f.Email != "" {
				user.Email = &f.Email
			}
			if err := repositories.NewGormUserRepository(db.GetDB()).Create(context.Background(), user); err != nil {
				return errors.WithMessagef(err, "create user %s", f.Username)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created user %s (id %d, role %s)\n", user.Username, user.ID, user.Role)
			return nil
		},
	}

	cmd.Flags().StringVar(&f.Password, "password", "", "Plain-text password to hash")
	cmd.Flags().StringVar(&f.Username, "username", "", "Create a user with this username")
	cmd.Flags().StringVar(&f.CompanyID, "company", "", "Company the new user belongs to")
	cmd.Flags().StringVar(&f.Role, "role", f.Role, "Role of the new user (owner,admin,manager,support)")
	cmd.Flags().StringVar(&f.Email, "email", "", "Email used for escalation notifications")
	cmd.Flags().BoolVar(&f.PlatformAdmin, "platform-admin", false, "Grant access to every company")
	return cmd
}
