package main

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/lead-magnet/internal/slack"
)

var runJSON bool

var runCmd = &cobra.Command{
	Use:   "run <command text>",
	Short: "Run one lead search in the foreground",
	Long:  "Runs a search written in slash command syntax, e.g. run 'keywords=vape | seniority=Founder/Owner | target=10', writes the configured exports and prints the summary.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
		if slack.IsHelp(text) {
			fmt.Fprintln(cmd.OutOrStdout(), slack.HelpText)
			return nil
		}
		req, err := slack.ParseCommand(text, commandDefaults(cfg.Loop))
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initApp(ctx, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		res, reports, runErr := env.Dispatcher.Execute(ctx, req)

		if runJSON && res != nil {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return err
			}
		} else if res != nil {
			fmt.Fprintln(cmd.OutOrStdout(), slack.FormatSummary(res, reports))
		}
		if runErr != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), slack.FormatError(runErr))
			return runErr
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the full run result as JSON")
	rootCmd.AddCommand(runCmd)
}
