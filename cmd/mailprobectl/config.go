package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/DukeRupert/mailprobe/internal/domain"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change the active SMTP relay settings",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the active relay settings (password masked)",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		cfg, err := a.settings.Active(cmd.Context())
		if err != nil {
			return errors.New(describe(err))
		}

		printConfig(cmd.OutOrStdout(), cfg)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Update the active relay settings",
	Long: `Update the active relay settings. Only the flags you pass change;
everything else keeps its stored value. Use --test to verify the
resulting credentials against the relay before saving.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		var current *domain.SMTPConfig
		if cfg, err := a.settings.Active(cmd.Context()); err == nil {
			current = cfg
		} else if domain.ErrorCode(err) != domain.ECONFIG {
			return errors.New(describe(err))
		}

		params := mergeConfigFlags(cmd, current)

		if test, _ := cmd.Flags().GetBool("test"); test {
			probe := params
			if probe.Password == "" && current != nil {
				probe.Password = current.Password
			}
			if err := a.settings.TestConnection(cmd.Context(), probe); err != nil {
				return fmt.Errorf("connection test failed, nothing saved: %s", describe(err))
			}
			logger.Info("Connection test passed", "host", probe.Host)
		}

		cfg, err := a.settings.Update(cmd.Context(), params)
		if err != nil {
			return errors.New(describe(err))
		}

		fmt.Fprintln(cmd.OutOrStdout(), "Settings saved.")
		printConfig(cmd.OutOrStdout(), cfg)
		return nil
	},
}

// mergeConfigFlags overlays the flags that were set onto the current
// settings. A blank password means "keep the stored one".
func mergeConfigFlags(cmd *cobra.Command, current *domain.SMTPConfig) domain.SMTPConfigParams {
	var p domain.SMTPConfigParams
	if current != nil {
		p = domain.SMTPConfigParams{
			Host:      current.Host,
			Port:      current.Port,
			Username:  current.Username,
			FromEmail: current.FromEmail,
			FromName:  current.FromName,
		}
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		p.Host, _ = flags.GetString("host")
	}
	if flags.Changed("port") {
		p.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("username") {
		p.Username, _ = flags.GetString("username")
	}
	if flags.Changed("password") {
		p.Password, _ = flags.GetString("password")
	}
	if flags.Changed("from-email") {
		p.FromEmail, _ = flags.GetString("from-email")
	}
	if flags.Changed("from-name") {
		p.FromName, _ = flags.GetString("from-name")
	}
	return p
}

func printConfig(w io.Writer, cfg *domain.SMTPConfig) {
	password := "(not set)"
	if cfg.HasPassword() {
		password = "********"
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Rows(
			[]string{"Host", cfg.Host},
			[]string{"Port", fmt.Sprint(cfg.Port)},
			[]string{"Username", cfg.Username},
			[]string{"Password", password},
			[]string{"From", cfg.FromHeader()},
			[]string{"Updated", cfg.UpdatedAt.Format("2006-01-02 15:04 MST")},
		)
	fmt.Fprintln(w, t)
}

func init() {
	f := configSetCmd.Flags()
	f.String("host", "", "SMTP host, e.g. email-smtp.us-east-1.amazonaws.com")
	f.Int("port", 587, "SMTP port")
	f.String("username", "", "SMTP username")
	f.String("password", "", "SMTP password")
	f.String("from-email", "", "sender address")
	f.String("from-name", "", "sender display name")
	f.Bool("test", false, "verify the credentials before saving")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
