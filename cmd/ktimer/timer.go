package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/goodtune/ktimer/internal/control"
	"github.com/goodtune/ktimer/internal/timer"
)

var (
	timerCategory     string
	timerHalfwayAlert bool
	timerShowEmpty    bool
)

var timerCmd = &cobra.Command{
	Use:   "timer",
	Short: "Manage timers in the stored state",
	Long: `Manage timers directly in the configured storage. These commands do not
tick; stop the server first or use the HTTP API while it runs.`,
}

var timerAddCmd = &cobra.Command{
	Use:   "add [flags] NAME DURATION",
	Short: "Add an idle timer",
	Example: `  ktimer timer add --category Work "Deep work" 25
  ktimer timer add --category Exercise --halfway Plank 90s`,
	Args: cobra.ExactArgs(2),
	RunE: runTimerAdd,
}

var timerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List timers grouped by category",
	Args:  cobra.NoArgs,
	RunE:  runTimerList,
}

var timerDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a timer; its history is kept",
	Args:  cobra.ExactArgs(1),
	RunE:  runTimerDelete,
}

func init() {
	timerAddCmd.Flags().StringVar(&timerCategory, "category", "Work", "Timer category")
	timerAddCmd.Flags().BoolVar(&timerHalfwayAlert, "halfway", false, "Alert at the halfway point")
	timerListCmd.Flags().BoolVar(&timerShowEmpty, "all", false, "Include empty categories")

	timerCmd.AddCommand(timerAddCmd, timerListCmd, timerDeleteCmd)
	for _, action := range []timer.Action{timer.ActionStart, timer.ActionPause, timer.ActionReset} {
		timerCmd.AddCommand(newTimerActionCmd(action))
	}
	rootCmd.AddCommand(timerCmd)
}

func newTimerActionCmd(action timer.Action) *cobra.Command {
	return &cobra.Command{
		Use:   string(action) + " ID",
		Short: fmt.Sprintf("Apply %s to one timer", action),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(func(s *session) error {
				res, err := s.controller.Apply(args[0], action)
				if err != nil {
					return err
				}
				if !res.Found {
					return fmt.Errorf("timer not found: %s", args[0])
				}
				if !res.Applied {
					_, _ = color.New(color.FgYellow).Fprintf(os.Stdout, "%s: %s has no effect on a %s timer\n", res.Timer.Name, action, res.Timer.Status)
					return nil
				}
				printTimer(control.NewTimerView(res.Timer))
				return nil
			})
		},
	}
}

func runTimerAdd(cmd *cobra.Command, args []string) error {
	return withSession(func(s *session) error {
		t, err := s.controller.CreateTimer(control.CreateRequest{
			Name:         args[0],
			Category:     timerCategory,
			Duration:     args[1],
			HalfwayAlert: timerHalfwayAlert,
		})
		if err != nil {
			return err
		}
		_, _ = color.New(color.FgGreen).Fprintf(os.Stdout, "Created %s\n", t.ID)
		printTimer(control.NewTimerView(t))
		return nil
	})
}

func runTimerList(cmd *cobra.Command, args []string) error {
	return withSession(func(s *session) error {
		snap := s.store.Snapshot()
		groups := control.GroupByCategory(snap.Categories, snap.Timers, timerShowEmpty)
		if len(groups) == 0 {
			_, _ = fmt.Fprintln(os.Stdout, "No timers")
			return nil
		}

		cyan := color.New(color.FgCyan, color.Bold)
		for _, g := range groups {
			_, _ = cyan.Printf("\n[%s] %d\n", g.Category, len(g.Timers))
			for _, v := range g.Timers {
				printTimer(v)
			}
		}
		return nil
	})
}

func runTimerDelete(cmd *cobra.Command, args []string) error {
	return withSession(func(s *session) error {
		if !s.controller.Delete(args[0]) {
			return fmt.Errorf("timer not found: %s", args[0])
		}
		_, _ = fmt.Fprintf(os.Stdout, "Deleted %s\n", args[0])
		return nil
	})
}

func printTimer(v control.TimerView) {
	line := fmt.Sprintf("  %-36s  %-20s %6s  %-9s %3.0f%%", v.ID, v.Name, v.Clock, v.Status, v.Progress*100)
	if v.HalfwayAlert {
		line += "  halfway"
	}
	_, _ = statusColor(v.Status).Println(strings.TrimRight(line, " "))
}

func statusColor(s timer.Status) *color.Color {
	switch s {
	case timer.StatusRunning:
		return color.New(color.FgGreen)
	case timer.StatusPaused:
		return color.New(color.FgYellow)
	case timer.StatusCompleted:
		return color.New(color.FgCyan)
	default:
		return color.New(color.Reset)
	}
}
