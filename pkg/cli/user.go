package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/getmockd/apilab/pkg/auth"
	"github.com/getmockd/apilab/pkg/cli/internal/output"
)

var (
	userEmail    string
	userName     string
	userRole     string
	userPassword string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage API user accounts",
}

var userAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a user in the configured store",
	Long: `Create a user directly in the configured store. Run it while the server
is stopped when using the file backend.

Without --password the password is prompted for interactively.`,
	Example: `  # Create the first admin
  apilab user add --email admin@example.com --role admin

  # Non-interactive
  apilab user add --email ci@example.com --role editor --password "$CI_PASSWORD"`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if userPassword == "" {
			if err := promptPassword(); err != nil {
				return err
			}
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log, closer, err := newLogger(cfg, os.Stderr)
		if err != nil {
			return err
		}
		defer closer.Close()

		st, err := openStore(cmd.Context(), cfg.Storage, log)
		if err != nil {
			return err
		}
		defer st.Close()

		// Only CreateUser is used, which never issues tokens.
		svc := auth.NewService(st.Users(), nil, log)
		u, err := svc.CreateUser(cmd.Context(), userEmail, userName, userPassword, auth.Role(userRole))
		if err != nil {
			return err
		}

		if jsonOutput {
			return output.JSON(cmd.OutOrStdout(), u.Public())
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created %s user %s (%s)\n", u.Role, u.Email, u.ID)
		return nil
	},
}

func init() {
	f := userAddCmd.Flags()
	f.StringVar(&userEmail, "email", "", "Email address (required)")
	f.StringVar(&userName, "name", "", "Display name")
	f.StringVar(&userRole, "role", string(auth.RoleViewer), "Role: admin, editor or viewer")
	f.StringVar(&userPassword, "password", "", "Password (prompted for when omitted)")
	_ = userAddCmd.MarkFlagRequired("email")
	userCmd.AddCommand(userAddCmd)
	rootCmd.AddCommand(userCmd)
}

func promptPassword() error {
	var confirm string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Password for " + userEmail).
				EchoMode(huh.EchoModePassword).
				Value(&userPassword).
				Validate(checkPasswordLength),
			huh.NewInput().
				Title("Confirm password").
				EchoMode(huh.EchoModePassword).
				Value(&confirm).
				Validate(func(s string) error {
					if s != userPassword {
						return errors.New("passwords do not match")
					}
					return nil
				}),
		),
	)
	return form.Run()
}

func checkPasswordLength(s string) error {
	if len(s) < auth.MinPasswordLength {
		return fmt.Errorf("must be at least %d characters", auth.MinPasswordLength)
	}
	return nil
}
