package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/DukeRupert/mailprobe/internal/domain"
	"github.com/DukeRupert/mailprobe/internal/service"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send one test email through the active relay",
	Long: `Send one test email and record it in the activity log under the
account given with --as.

With --template the subject and body come from a stored template and
--var supplies placeholder values (--var otp_code=123456).`,
	Example: `  mailprobectl send --as admin --to you@example.com --subject "Relay check" --body "Hello"
  mailprobectl send --as admin --to you@example.com --template <id> --var otp_code=123456`,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		as, _ := flags.GetString("as")
		to, _ := flags.GetString("to")
		subject, _ := flags.GetString("subject")
		body, err := bodyFromFlags(cmd)
		if err != nil {
			return err
		}
		isHTML, _ := flags.GetBool("html")
		templateID, _ := flags.GetString("template")
		vars, _ := flags.GetStringToString("var")

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		mailer, err := newMailer(cmd.Context(), a, as)
		if err != nil {
			return err
		}

		var result domain.SendResult
		if templateID != "" {
			id, err := uuid.Parse(templateID)
			if err != nil {
				return fmt.Errorf("--template must be a template id: %w", err)
			}
			if !service.IsValidEmail(to) {
				return fmt.Errorf("--to must be a valid email address")
			}
			result, err = mailer.SendTemplate(cmd.Context(), to, id, vars)
			if err != nil {
				return errors.New(describe(err))
			}
		} else {
			req := domain.SendRequest{To: to, Subject: subject, Body: body, IsHTML: isHTML}
			if err := service.ValidateSendRequest(req); err != nil {
				return errors.New(describe(err))
			}
			result = mailer.Send(cmd.Context(), req)
		}

		printResult(cmd.OutOrStdout(), to, result)
		if !result.Success {
			return errors.New("send failed")
		}
		return nil
	},
}

var bulkCmd = &cobra.Command{
	Use:   "bulk",
	Short: "Send the same message to many recipients",
	Long: `Send one message to every address in --to (separated by commas,
semicolons or newlines). Invalid addresses are skipped and listed;
every valid address gets its own attempt and log entry.`,
	Example: `  mailprobectl bulk --as admin --to "a@example.com, b@example.com" --subject Hi --body Test
  mailprobectl bulk --as admin --to "$(cat recipients.txt)" --subject Hi --body-file body.html --html`,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		as, _ := flags.GetString("as")
		to, _ := flags.GetString("to")
		subject, _ := flags.GetString("subject")
		body, err := bodyFromFlags(cmd)
		if err != nil {
			return err
		}
		isHTML, _ := flags.GetBool("html")

		if err := service.ValidateBulkContent(subject, body); err != nil {
			return errors.New(describe(err))
		}

		valid, invalid := service.ParseRecipients(to)
		for _, addr := range invalid {
			logger.Warn("Skipping invalid address", "address", addr)
		}
		if len(valid) == 0 {
			return errors.New("no valid email addresses found")
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		mailer, err := newMailer(cmd.Context(), a, as)
		if err != nil {
			return err
		}

		report := mailer.SendBulk(cmd.Context(), domain.BulkRequest{
			Recipients: valid,
			Subject:    subject,
			Body:       body,
			IsHTML:     isHTML,
		})

		out := cmd.OutOrStdout()
		for _, r := range report.Results {
			printResult(out, r.Email, r.Result)
		}
		if len(invalid) > 0 {
			fmt.Fprintf(out, "Skipped %d invalid: %s\n", len(invalid), strings.Join(invalid, ", "))
		}
		fmt.Fprintf(out, "Bulk email completed: %s.\n", report.Summary())

		if !report.AllSucceeded() {
			return fmt.Errorf("%d of %d sends failed", report.Total()-report.Succeeded(), report.Total())
		}
		return nil
	},
}

// newMailer resolves the acting account and binds a mailer to the active
// relay settings.
func newMailer(ctx context.Context, a *app, username string) (service.Mailer, error) {
	user, err := a.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("--as %s: %s", username, describe(err))
	}

	mailer, err := a.mail.NewMailer(ctx, domain.ActorFromUser(user))
	if err != nil {
		return nil, errors.New(describe(err))
	}

	cfg := mailer.Config()
	logger.Info("Sending via relay", "host", cfg.Host, "port", cfg.Port, "from", cfg.FromEmail)
	return mailer, nil
}

// bodyFromFlags returns --body, or the contents of --body-file ("-" reads
// stdin).
func bodyFromFlags(cmd *cobra.Command) (string, error) {
	body, _ := cmd.Flags().GetString("body")
	path, _ := cmd.Flags().GetString("body-file")
	if path == "" {
		return body, nil
	}
	if body != "" {
		return "", errors.New("use either --body or --body-file, not both")
	}

	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(data), nil
}

func printResult(w io.Writer, to string, r domain.SendResult) {
	if r.Success {
		fmt.Fprintf(w, "OK    %s  message-id=%s\n", to, r.MessageID)
		return
	}
	fmt.Fprintf(w, "FAIL  %s  %s\n", to, r.Error)
}

func init() {
	for _, c := range []*cobra.Command{sendCmd, bulkCmd} {
		f := c.Flags()
		f.String("as", "", "username the send is logged under")
		f.String("to", "", "recipient address(es)")
		f.String("subject", "", "subject line")
		f.String("body", "", "message body")
		f.String("body-file", "", "read the body from a file (- for stdin)")
		f.Bool("html", false, "send the body as HTML")
		_ = c.MarkFlagRequired("as")
		_ = c.MarkFlagRequired("to")
	}

	sendCmd.Flags().String("template", "", "stored template id")
	sendCmd.Flags().StringToString("var", nil, "template variable, repeatable (--var name=value)")
}
