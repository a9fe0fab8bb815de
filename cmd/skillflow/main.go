// Package main provides the skillflow CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/zhfg/refly-sub011/cli"
)

var (
	// Global flags
	provider string
	verbose  bool
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "skillflow",
		Short: "Skill scheduling for canvas copilots",
		Long: `Runs skill turns: context filtering, intent matching, tool calls and a
streamed model answer, reported as a span-structured event stream.

Skills:
- commonQnA: answer with web search, sources and related questions
- generateDoc: write a new document
- rewriteDoc: rewrite the current document
- editDoc: replace a selection inside the current document`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&provider, "provider", "p", "", "LLM provider (openai, anthropic, deepseek, gemini); defaults to $LLM_PROVIDER or openai")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(skillsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func options() cli.Options {
	return cli.Options{Provider: provider, Verbose: verbose}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve skill turns over HTTP with SSE",
		Long: `Starts the HTTP server.

Endpoints:
- POST /v1/skills/invoke      run a turn, streamed as server-sent events
- GET  /v1/turns/:id/events   replay a recorded turn
- GET  /v1/turns/:id/usage    token usage of a recorded turn
- GET  /healthz, /metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()
			return cli.Serve(ctx, addr, options())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default $SERVER_ADDR or :8080)")
	return cmd
}

func runCmd() *cobra.Command {
	var runOpts cli.RunOptions

	cmd := &cobra.Command{
		Use:   "run [query]",
		Short: "Run a single turn and print its events",
		Example: `  skillflow run "what changed in go 1.24?"
  skillflow run --project p1 --document plan.md "make it more formal"
  skillflow run --project p1 --document plan.md --selection "Ship it." "make this bolder"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()
			return cli.Run(ctx, args[0], runOpts, options(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&runOpts.ProjectID, "project", "", "Project id; enables document intents")
	cmd.Flags().StringVar(&runOpts.DocumentPath, "document", "", "Markdown file used as the current document")
	cmd.Flags().StringVar(&runOpts.Selection, "selection", "", "Text selected in the current document")
	cmd.Flags().StringVar(&runOpts.Skill, "skill", "", "Skill to run without intent matching")
	cmd.Flags().BoolVar(&runOpts.JSON, "json", false, "Print raw events as JSON lines")
	return cmd
}

func skillsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "skills",
		Short: "List skills and the tools they use",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cli.ListSkills(cmd.OutOrStdout())
		},
	}
}
