package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configPath    string
	logLevel      string
	headful       bool
	controllerURL string
	record        string
	addr          string
	fullResult    bool
	verbose       bool
)

func main() {
	// Load .env file if present (silently ignore if not found)
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "pagepilot",
		Short: "Relay browser actions between a remote controller and a Chromium tab",
		Long: `pagepilot drives a Chromium tab on behalf of a remote controller: it sends the
goal and page state, executes the controller's click, type, scroll, keypress and
wait actions in the page, and acknowledges each one with fresh page state.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: ./pagepilot.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&headful, "headful", false, "Show the browser window")
	rootCmd.PersistentFlags().StringVar(&controllerURL, "controller", "", "Controller websocket URL override")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed progress")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newExecCmd())
	rootCmd.AddCommand(newCheckCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <url> <goal>",
		Short: "Open a page and let the controller pursue a goal on it",
		Example: `  pagepilot run "https://myapp.com" "sign up with test@example.com"
  pagepilot run "https://myapp.com/pricing" "find the cheapest plan" --record pricing.gif`,
		Args: cobra.ExactArgs(2),
		RunE: runTask,
	}
	cmd.Flags().StringVarP(&record, "record", "r", "", "Write the captured screenshots to this GIF")
	return cmd
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [url]",
		Short: "Serve the relay HTTP API, optionally opening a page first",
		Args:  cobra.MaximumNArgs(1),
		RunE:  serve,
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address override")
	return cmd
}

func newExecCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "exec <url> <action-json>",
		Short:   "Execute a single action on a page and print the result",
		Example: `  pagepilot exec "https://example.com" '{"action":"scroll","direction":"down","pixels":400}'`,
		Args:    cobra.ExactArgs(2),
		RunE:    execAction,
	}
	cmd.Flags().BoolVar(&fullResult, "full", false, "Include html and screenshot in the printed result")
	return cmd
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the controller answers a test message",
		Args:  cobra.NoArgs,
		RunE:  checkController,
	}
}

func logVerbose(format string, args ...interface{}) {
	if verbose {
		fmt.Printf(format+"\n", args...)
	}
}
