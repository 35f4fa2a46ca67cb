package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/edgard/assistbot/internal/intent"
	"github.com/edgard/assistbot/internal/kv"
	"github.com/edgard/assistbot/internal/parser"
)

func newClassifyCmd() *cobra.Command {
	var (
		locale    string
		attentive bool
	)
	cmd := &cobra.Command{
		Use:   "classify <text>",
		Short: "Print the intent the bot would pick for a message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cache := kv.NewMemoryStore()
			defer cache.Close()

			c := intent.NewClassifier(intent.DefaultTable(), cache, intent.Config{}, quietLogger())
			res, err := c.Recognize(cmd.Context(), strings.Join(args, " "), locale, attentive)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&locale, "locale", "en", "Locale used for canned responses")
	cmd.Flags().BoolVar(&attentive, "attentive", false, "Classify as a follow-up without a wake phrase")
	return cmd
}

func newParseCmd() *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "parse <text>",
		Short: "Print the reminder request parsed from a message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return err
				}
				now = t
			}
			req := parser.New(quietLogger()).ParseRequest(strings.Join(args, " "), now)
			return printJSON(cmd.OutOrStdout(), req)
		},
	}
	cmd.Flags().StringVar(&at, "now", "", "Reference time in RFC 3339 format (default: current time)")
	return cmd
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
