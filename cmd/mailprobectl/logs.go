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

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "List recorded send attempts, newest first",
	Example: `  mailprobectl logs
  mailprobectl logs --status failed --type bulk --date 2026-03-01 --page 2`,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		status, _ := flags.GetString("status")
		testType, _ := flags.GetString("type")
		date, _ := flags.GetString("date")
		page, _ := flags.GetInt("page")

		filter, err := domain.ParseLogFilter(status, testType, date)
		if err != nil {
			return errors.New(describe(err))
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.activity.Query(cmd.Context(), filter, page)
		if err != nil {
			return errors.New(describe(err))
		}

		printLogs(cmd.OutOrStdout(), result)
		return nil
	},
}

func printLogs(w io.Writer, p *domain.LogPage) {
	if len(p.Entries) == 0 {
		fmt.Fprintln(w, "No email logs found.")
		return
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("SENT AT", "TYPE", "STATUS", "RECIPIENT", "SUBJECT", "USER", "DETAIL")

	for _, e := range p.Entries {
		detail := e.MessageID
		if e.Status == domain.LogStatusFailed {
			detail = e.ErrorMessage
		}
		t.Row(
			e.SentAt.Format("2006-01-02 15:04:05"),
			string(e.TestType),
			string(e.Status),
			e.RecipientEmail,
			truncate(e.Subject, 40),
			orDash(e.Username),
			truncate(orDash(detail), 60),
		)
	}

	fmt.Fprintln(w, t)
	fmt.Fprintf(w, "Page %d of %d (%d entries)\n", p.Page, p.TotalPages(), p.Total)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	f := logsCmd.Flags()
	f.String("status", "", "sent or failed")
	f.String("type", "", "basic, template or bulk")
	f.String("date", "", "YYYY-MM-DD")
	f.Int("page", 1, "page number")
}
