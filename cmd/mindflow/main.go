// MindFlow CLI - inspect and mutate your MindFlow data from the terminal.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mindflow-hq/mindflow/internal/assist"
	"github.com/mindflow-hq/mindflow/internal/config"
	"github.com/mindflow-hq/mindflow/internal/core"
	"github.com/mindflow-hq/mindflow/internal/events"
	"github.com/mindflow-hq/mindflow/internal/ideas"
	"github.com/mindflow-hq/mindflow/internal/logging"
	"github.com/mindflow-hq/mindflow/internal/reminders"
	"github.com/mindflow-hq/mindflow/internal/store"
	"github.com/mindflow-hq/mindflow/internal/tasks"
)

var (
	configPath string
	dataDir    string

	version = "0.1.0"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mindflow",
		Short: "MindFlow - tasks, calendar, and ideas in one place",
		Long: `MindFlow keeps your to-dos, calendar events, and idea board
in a single local database, with optional AI assistance for
breaking down tasks, scheduling events from plain language,
and expanding rough ideas.

Your data lives on YOUR machine.`,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (overrides config)")

	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(eventCmd())
	rootCmd.AddCommand(ideaCmd())
	rootCmd.AddCommand(keyCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app bundles everything a command needs against the local database.
type app struct {
	cfg    *config.Config
	db     *store.DB
	kv     *store.KV
	tasks  *tasks.Service
	events *events.Service
	ideas  *ideas.Service
	rem    *reminders.Service
}

func (a *app) close() {
	a.rem.Stop()
	a.db.Close()
}

// openApp opens the database and wires the services. The CLI is a
// short-lived process, so reminders scheduled here will not outlive it;
// the daemon re-arms them for timed events it serves.
func openApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	logging.SetLevel(logging.ParseLevel(cfg.LogLevel))

	dbPath := filepath.Join(cfg.DataDir, "mindflow.db")
	db, err := store.Open(store.Config{Path: dbPath})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	kv := store.NewKV(db)
	assistClient := assist.NewClient(assist.Config{
		APIKey:  cfg.Assist.APIKey,
		BaseURL: cfg.Assist.BaseURL,
		Model:   cfg.Assist.Model,
	})
	rem := reminders.NewService()

	return &app{
		cfg:    cfg,
		db:     db,
		kv:     kv,
		tasks:  tasks.NewService(kv, assistClient),
		events: events.NewService(kv, assistClient, rem),
		ideas:  ideas.NewService(kv, assistClient),
		rem:    rem,
	}, nil
}

// statusCmd shows a summary of the local data
func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show MindFlow status",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx := context.Background()

			active, err := a.tasks.Active(ctx)
			if err != nil {
				return err
			}
			history, err := a.tasks.History(ctx)
			if err != nil {
				return err
			}
			allEvents, err := a.events.All(ctx)
			if err != nil {
				return err
			}
			ideaList, err := a.ideas.List(ctx)
			if err != nil {
				return err
			}

			eventCount := 0
			for _, bucket := range allEvents {
				eventCount += len(bucket)
			}
			archived := 0
			for _, day := range history {
				archived += len(day)
			}

			fmt.Println("📊 MindFlow Status")
			fmt.Println()
			fmt.Printf("   Data: %s\n", a.cfg.DataDir)
			fmt.Printf("   📋 Tasks: %d active, %d archived\n", len(active), archived)
			fmt.Printf("   📅 Events: %d across %d days\n", eventCount, len(allEvents))
			fmt.Printf("   💡 Ideas: %d\n", len(ideaList))

			keyState := "not set"
			if a.cfg.Assist.APIKey != "" {
				keyState = "configured"
			}
			fmt.Printf("   ✨ Assist: %s\n", keyState)

			return nil
		},
	}
}

// taskCmd handles task operations
func taskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Task operations",
	}

	addCmd := &cobra.Command{
		Use:   "add [text]",
		Short: "Add a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			breakdown, _ := cmd.Flags().GetBool("breakdown")

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx := context.Background()
			if breakdown {
				created, err := a.tasks.AddWithBreakdown(ctx, text)
				if err != nil {
					return err
				}
				fmt.Printf("✅ Added %d task(s):\n", len(created))
				for _, t := range created {
					fmt.Printf("   • %s\n", t.Text)
				}
				return nil
			}

			task, err := a.tasks.Add(ctx, text)
			if err != nil {
				return err
			}
			fmt.Printf("✅ Added: %s\n", task.Text)
			return nil
		},
	}
	addCmd.Flags().Bool("breakdown", false, "Break the text into subtasks with AI")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List active tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			active, err := a.tasks.Active(context.Background())
			if err != nil {
				return err
			}
			if len(active) == 0 {
				fmt.Println("No active tasks. Add one with 'mindflow task add'.")
				return nil
			}

			fmt.Printf("📋 Active Tasks (%d)\n\n", len(active))
			for _, t := range active {
				mark := "○"
				if t.Completed {
					mark = "✓"
				}
				fmt.Printf("   %s %s  (%s)\n", mark, t.Text, t.ID[:8])
			}
			return nil
		},
	}

	toggleCmd := &cobra.Command{
		Use:   "toggle [id]",
		Short: "Toggle a task's completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx := context.Background()
			id, err := resolveTaskID(ctx, a, args[0])
			if err != nil {
				return err
			}
			if err := a.tasks.Toggle(ctx, id); err != nil {
				return err
			}
			fmt.Println("✅ Toggled.")
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx := context.Background()
			id, err := resolveTaskID(ctx, a, args[0])
			if err != nil {
				return err
			}
			if err := a.tasks.Delete(ctx, id); err != nil {
				return err
			}
			fmt.Println("🗑️  Deleted.")
			return nil
		},
	}

	archiveCmd := &cobra.Command{
		Use:   "archive",
		Short: "Archive all completed tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			n, err := a.tasks.ArchiveCompleted(context.Background())
			if err != nil {
				return err
			}
			if n == 0 {
				fmt.Println("Nothing to archive.")
				return nil
			}
			fmt.Printf("📦 Archived %d task(s).\n", n)
			return nil
		},
	}

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show archived tasks grouped by date",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			history, err := a.tasks.History(context.Background())
			if err != nil {
				return err
			}
			if len(history) == 0 {
				fmt.Println("No archived tasks yet.")
				return nil
			}

			dates := make([]string, 0, len(history))
			for d := range history {
				dates = append(dates, d)
			}
			sort.Sort(sort.Reverse(sort.StringSlice(dates)))

			for _, d := range dates {
				fmt.Printf("📅 %s\n", d)
				for _, t := range history[d] {
					fmt.Printf("   ✓ %s\n", t.Text)
				}
				fmt.Println()
			}
			return nil
		},
	}

	cmd.AddCommand(addCmd, listCmd, toggleCmd, deleteCmd, archiveCmd, historyCmd)
	return cmd
}

// resolveTaskID accepts a full id or an unambiguous prefix.
func resolveTaskID(ctx context.Context, a *app, prefix string) (string, error) {
	all, err := a.tasks.List(ctx)
	if err != nil {
		return "", err
	}

	var match string
	for _, t := range all {
		if t.ID == prefix {
			return t.ID, nil
		}
		if strings.HasPrefix(t.ID, prefix) {
			if match != "" {
				return "", fmt.Errorf("id prefix %q is ambiguous", prefix)
			}
			match = t.ID
		}
	}
	if match == "" {
		return "", core.ErrTaskNotFound
	}
	return match, nil
}

// eventCmd handles calendar operations
func eventCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "event",
		Short: "Calendar operations",
	}

	addCmd := &cobra.Command{
		Use:   "add [title]",
		Short: "Add a calendar event",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			title := strings.Join(args, " ")
			date, _ := cmd.Flags().GetString("date")
			timeStr, _ := cmd.Flags().GetString("time")
			smart, _ := cmd.Flags().GetBool("smart")

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			if date == "" {
				date = core.Today()
			}

			ctx := context.Background()
			var evt core.Event
			if smart {
				evt, err = a.events.AddSmart(ctx, title, date)
			} else {
				evt, err = a.events.Add(ctx, date, title, timeStr)
			}
			if err != nil {
				return err
			}

			when := evt.DateStr
			if evt.Time != "" {
				when += " " + evt.Time
			}
			fmt.Printf("📅 Added: %s (%s)\n", evt.Title, when)
			return nil
		},
	}
	addCmd.Flags().String("date", "", "Event date (YYYY-MM-DD, default today)")
	addCmd.Flags().String("time", "", "Event time (HH:MM)")
	addCmd.Flags().Bool("smart", false, "Extract date and time from the title with AI")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List events for a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			date, _ := cmd.Flags().GetString("date")
			if date == "" {
				date = core.Today()
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			day, err := a.events.ForDate(context.Background(), date)
			if err != nil {
				return err
			}
			if len(day) == 0 {
				fmt.Printf("No events on %s.\n", date)
				return nil
			}

			fmt.Printf("📅 Events on %s\n\n", date)
			for _, e := range day {
				mark := "○"
				if e.Completed {
					mark = "✓"
				}
				when := "all day"
				if e.Time != "" {
					when = e.Time
				}
				fmt.Printf("   %s %-7s %s  (%s)\n", mark, when, e.Title, e.ID[:8])
			}
			return nil
		},
	}
	listCmd.Flags().String("date", "", "Date to list (YYYY-MM-DD, default today)")

	completeCmd := &cobra.Command{
		Use:   "complete [date] [id]",
		Short: "Mark an event as completed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx := context.Background()
			id, err := resolveEventID(ctx, a, args[0], args[1])
			if err != nil {
				return err
			}
			if err := a.events.Complete(ctx, args[0], id); err != nil {
				return err
			}
			fmt.Println("✅ Completed.")
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete [date] [id]",
		Short: "Delete an event",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx := context.Background()
			id, err := resolveEventID(ctx, a, args[0], args[1])
			if err != nil {
				return err
			}
			if err := a.events.Delete(ctx, args[0], id); err != nil {
				return err
			}
			fmt.Println("🗑️  Deleted.")
			return nil
		},
	}

	cmd.AddCommand(addCmd, listCmd, completeCmd, deleteCmd)
	return cmd
}

// resolveEventID accepts a full id or an unambiguous prefix within one day.
func resolveEventID(ctx context.Context, a *app, date, prefix string) (string, error) {
	day, err := a.events.ForDate(ctx, date)
	if err != nil {
		return "", err
	}

	var match string
	for _, e := range day {
		if e.ID == prefix {
			return e.ID, nil
		}
		if strings.HasPrefix(e.ID, prefix) {
			if match != "" {
				return "", fmt.Errorf("id prefix %q is ambiguous", prefix)
			}
			match = e.ID
		}
	}
	if match == "" {
		return "", core.ErrEventNotFound
	}
	return match, nil
}

// ideaCmd handles idea board operations
func ideaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "idea",
		Short: "Idea board operations",
	}

	addCmd := &cobra.Command{
		Use:   "add [content]",
		Short: "Add an idea",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			idea, err := a.ideas.Add(context.Background(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Printf("💡 Added: %s\n", idea.Content)
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List ideas",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			ideaList, err := a.ideas.List(context.Background())
			if err != nil {
				return err
			}
			if len(ideaList) == 0 {
				fmt.Println("No ideas yet. Add one with 'mindflow idea add'.")
				return nil
			}

			fmt.Printf("💡 Ideas (%d)\n\n", len(ideaList))
			for _, i := range ideaList {
				fmt.Printf("   • %s  (%s)\n", truncate(i.Content, 80), i.ID[:8])
			}
			return nil
		},
	}

	expandCmd := &cobra.Command{
		Use:   "expand [id]",
		Short: "Expand an idea with AI",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx := context.Background()
			id, err := resolveIdeaID(ctx, a, args[0])
			if err != nil {
				return err
			}
			idea, err := a.ideas.Expand(ctx, id)
			if err != nil {
				return err
			}
			fmt.Println(idea.Content)
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete an idea",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx := context.Background()
			id, err := resolveIdeaID(ctx, a, args[0])
			if err != nil {
				return err
			}
			if err := a.ideas.Delete(ctx, id); err != nil {
				return err
			}
			fmt.Println("🗑️  Deleted.")
			return nil
		},
	}

	cmd.AddCommand(addCmd, listCmd, expandCmd, deleteCmd)
	return cmd
}

// resolveIdeaID accepts a full id or an unambiguous prefix.
func resolveIdeaID(ctx context.Context, a *app, prefix string) (string, error) {
	all, err := a.ideas.List(ctx)
	if err != nil {
		return "", err
	}

	var match string
	for _, i := range all {
		if i.ID == prefix {
			return i.ID, nil
		}
		if strings.HasPrefix(i.ID, prefix) {
			if match != "" {
				return "", fmt.Errorf("id prefix %q is ambiguous", prefix)
			}
			match = i.ID
		}
	}
	if match == "" {
		return "", core.ErrIdeaNotFound
	}
	return match, nil
}

// keyCmd stores the assist API key in the config file
func keyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "key",
		Short: "Set the assist API key",
		Long: `Stores the Gemini API key in the MindFlow config file.

The key is read without echoing. The GEMINI_API_KEY environment
variable, when set, always takes precedence over the stored key.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if dataDir != "" {
				cfg.DataDir = dataDir
			}

			fmt.Print("API key: ")
			key, err := term.ReadPassword(int(os.Stdin.Fd()))
			if err != nil {
				return fmt.Errorf("failed to read key: %w", err)
			}
			fmt.Println()

			cfg.Assist.APIKey = strings.TrimSpace(string(key))
			if err := cfg.Save(configPath); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			if cfg.Assist.APIKey == "" {
				fmt.Println("✅ API key cleared. Smart features will fall back to defaults.")
			} else {
				fmt.Println("✅ API key saved.")
			}
			return nil
		},
	}
}

// versionCmd shows version
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show MindFlow version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("MindFlow %s\n", version)
			fmt.Println("Tasks, calendar, and ideas in one place")
		},
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
