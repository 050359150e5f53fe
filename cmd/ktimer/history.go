package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/goodtune/ktimer/internal/config"
	"github.com/goodtune/ktimer/internal/engine"
	"github.com/goodtune/ktimer/internal/export"
	"github.com/goodtune/ktimer/internal/notify"
)

var (
	exportFormat string
	exportOutput string
	tickSteps    int
	clearYes     bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show completed timers, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(s *session) error {
			logs := s.store.Logs()
			if len(logs) == 0 {
				_, _ = fmt.Fprintln(os.Stdout, "No completed timers")
				return nil
			}
			return export.Write(os.Stdout, logs, export.FormatText)
		})
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the completion history",
	Example: `  ktimer export --format json --output history.json
  ktimer export --format yaml`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Advance running timers by a number of one-second steps",
	Args:  cobra.NoArgs,
	RunE:  runTick,
}

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect or reset the stored state",
}

var stateClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the stored state, including history",
	Args:  cobra.NoArgs,
	RunE:  runStateClear,
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "Output format: json, yaml or text")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Write to file instead of stdout")
	tickCmd.Flags().IntVar(&tickSteps, "steps", 1, "Number of steps to apply")
	stateClearCmd.Flags().BoolVar(&clearYes, "yes", false, "Confirm deletion")

	stateCmd.AddCommand(stateClearCmd)
	rootCmd.AddCommand(historyCmd, exportCmd, tickCmd, stateCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	format, err := export.ParseFormat(exportFormat)
	if err != nil {
		return err
	}

	return withSession(func(s *session) error {
		if exportOutput == "" {
			return export.Write(os.Stdout, s.store.Logs(), format)
		}

		f, err := os.Create(exportOutput)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", exportOutput, err)
		}
		if err := export.Write(f, s.store.Logs(), format); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(os.Stderr, "Exported %d entries to %s\n", len(s.store.Logs()), exportOutput)
		return nil
	})
}

func runTick(cmd *cobra.Command, args []string) error {
	if tickSteps < 1 {
		return fmt.Errorf("steps must be at least 1")
	}

	return withSession(func(s *session) error {
		printer := notifyPrinter{}
		e := engine.New(s.store, printer, engine.Config{
			Interval: config.Duration(s.cfg.Engine.TickInterval, engine.DefaultInterval),
		}, s.logger)
		res := e.Advance(tickSteps)
		_, _ = fmt.Fprintf(os.Stdout, "Applied %d step(s), %d timer(s) still running\n", res.Steps, res.Running)
		return nil
	})
}

func runStateClear(cmd *cobra.Command, args []string) error {
	if !clearYes {
		return fmt.Errorf("refusing to delete stored state without --yes")
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.gateway.Clear(ctx); err != nil {
		return err
	}
	_, _ = color.New(color.FgRed).Fprintln(os.Stdout, "Stored state deleted")
	return nil
}

// notifyPrinter prints alerts raised by the tick command.
type notifyPrinter struct{}

func (notifyPrinter) Notify(n notify.Notification) {
	_, _ = color.New(color.FgMagenta, color.Bold).Fprintf(os.Stdout, "%s %s\n", n.Title(), n.Message())
}
