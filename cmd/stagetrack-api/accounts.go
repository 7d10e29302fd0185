package main

import (
	"fmt"

	"github.com/MarcoPoloResearchLab/stagetrack/internal/config"
	"github.com/MarcoPoloResearchLab/stagetrack/internal/logging"
	"github.com/MarcoPoloResearchLab/stagetrack/internal/users"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newAccountsCommand() *cobra.Command {
	accountsCmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage portal accounts",
	}
	accountsCmd.AddCommand(newCreateAccountCommand(), newGrantAdminCommand())
	return accountsCmd
}

func newCreateAccountCommand() *cobra.Command {
	var (
		params users.CreateParams
		admin  bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a portal account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if admin {
				params.Capabilities = []string{users.CapabilityManageOptions}
			}
			return withAccounts(cmd, func(accounts *users.Service) error {
				account, err := accounts.Create(cmd.Context(), params)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created account %d (%s)\n", account.ID, account.Email)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&params.Login, "login", "", "Login name")
	cmd.Flags().StringVar(&params.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&params.DisplayName, "name", "", "Display name")
	cmd.Flags().StringVar(&params.Password, "password", "", "Password")
	cmd.Flags().BoolVar(&admin, "admin", false, "Grant the manage_options capability")
	_ = cmd.MarkFlagRequired("login")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newGrantAdminCommand() *cobra.Command {
	var capability string
	cmd := &cobra.Command{
		Use:   "grant-admin <login-or-email>",
		Short: "Grant an admin capability to an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAccounts(cmd, func(accounts *users.Service) error {
				account, err := accounts.GrantCapability(cmd.Context(), args[0], capability)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "account %d (%s) capabilities: %v\n", account.ID, account.Email, account.Capabilities)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&capability, "capability", users.CapabilityManageOptions, "Capability to grant (manage_options, manage_store)")
	return cmd
}

// withAccounts opens the database only; account commands do not need the signing secrets.
func withAccounts(cmd *cobra.Command, run func(accounts *users.Service) error) error {
	configViper := viper.GetViper()
	appConfig := config.AppConfig{
		DatabaseDriver: configViper.GetString("database.driver"),
		DatabasePath:   configViper.GetString("database.path"),
		DatabaseDSN:    configViper.GetString("database.dsn"),
	}
	logger, err := logging.NewLogger(configViper.GetString("log.level"))
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, closeDB, err := openDatabase(appConfig, logger)
	if err != nil {
		return err
	}
	defer closeDB()

	accounts, err := users.NewService(users.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}
	return run(accounts)
}
