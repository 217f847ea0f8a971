package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// passwordEnv lets scripts pass a password without putting it in argv.
const passwordEnv = "MAILPROBE_PASSWORD"

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage operator accounts",
	Long: `Manage the accounts that can sign in to the web interface.

There is no self-registration; every account is created here.`,
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an account",
	RunE: func(cmd *cobra.Command, args []string) error {
		username, _ := cmd.Flags().GetString("username")
		password, err := passwordFromFlags(cmd)
		if err != nil {
			return err
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		user, err := a.users.CreateUser(cmd.Context(), username, password)
		if err != nil {
			return fmt.Errorf("create user: %s", describe(err))
		}

		logger.Info("User created", "username", user.Username, "id", user.ID)
		fmt.Fprintf(cmd.OutOrStdout(), "Created user %s (%s)\n", user.Username, user.ID)
		return nil
	},
}

var userPasswdCmd = &cobra.Command{
	Use:   "passwd",
	Short: "Change an account's password and sign it out everywhere",
	RunE: func(cmd *cobra.Command, args []string) error {
		username, _ := cmd.Flags().GetString("username")
		password, err := passwordFromFlags(cmd)
		if err != nil {
			return err
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.users.ChangePassword(cmd.Context(), username, password); err != nil {
			return fmt.Errorf("change password: %s", describe(err))
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Password updated for %s; existing sessions revoked\n", username)
		return nil
	},
}

// passwordFromFlags reads --password, falling back to MAILPROBE_PASSWORD.
func passwordFromFlags(cmd *cobra.Command) (string, error) {
	password, _ := cmd.Flags().GetString("password")
	if password == "" {
		password = os.Getenv(passwordEnv)
	}
	if password == "" {
		return "", fmt.Errorf("--password is required (or set %s)", passwordEnv)
	}
	return password, nil
}

func init() {
	for _, c := range []*cobra.Command{userCreateCmd, userPasswdCmd} {
		c.Flags().String("username", "", "account username")
		c.Flags().String("password", "", "account password (or set "+passwordEnv+")")
		_ = c.MarkFlagRequired("username")
	}

	userCmd.AddCommand(userCreateCmd)
	userCmd.AddCommand(userPasswdCmd)
}
