// MindFlow Daemon - the background service backing every MindFlow UI
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mindflow-hq/mindflow/internal/actions"
	"github.com/mindflow-hq/mindflow/internal/api"
	"github.com/mindflow-hq/mindflow/internal/assist"
	"github.com/mindflow-hq/mindflow/internal/config"
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
	port       int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mindflowd",
		Short: "MindFlow Daemon - tasks, calendar, and ideas in one place",
		RunE:  runDaemon,
	}

	rootCmd.Flags().StringVar(&configPath, "config", "", "Config file path")
	rootCmd.Flags().StringVar(&dataDir, "data-dir", "", "Data directory (overrides config)")
	rootCmd.Flags().IntVar(&port, "port", 0, "HTTP server port (overrides config)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if port != 0 {
		cfg.Server.Port = port
	}

	logging.SetLevel(logging.ParseLevel(cfg.LogLevel))
	fmt.Println("🚀 Starting MindFlow Daemon...")

	// Open database
	dbPath := filepath.Join(cfg.DataDir, "mindflow.db")
	db, err := store.Open(store.Config{Path: dbPath})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	// Run migrations
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	kv := store.NewKV(db)

	// Initialize assist client
	assistClient := assist.NewClient(assist.Config{
		APIKey:  cfg.Assist.APIKey,
		BaseURL: cfg.Assist.BaseURL,
		Model:   cfg.Assist.Model,
	})
	if !assistClient.IsConfigured() {
		fmt.Println("⚠️  GEMINI_API_KEY not set - smart features will fall back to defaults")
	} else {
		fmt.Println("✅ Gemini API configured")
	}

	// Reminder scheduler
	reminderService := reminders.NewService()
	defer reminderService.Stop()

	// Domain services
	taskService := tasks.NewService(kv, assistClient)
	eventService := events.NewService(kv, assistClient, reminderService)
	ideaService := ideas.NewService(kv, assistClient)

	// Route performed notification actions back into the store
	actionHandler := actions.NewHandler(eventService, reminderService)
	actionHandler.Register()
	defer actionHandler.Close()

	// Create API server
	server := api.New(api.Config{
		Port:      cfg.Server.Port,
		KV:        kv,
		Tasks:     taskService,
		Events:    eventService,
		Ideas:     ideaService,
		Assist:    assistClient,
		Reminders: reminderService,
	})

	// Handle shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		fmt.Println("\n🛑 Shutting down...")
		server.Stop(context.Background())
	}()

	// Start server (blocks)
	fmt.Printf("🌐 Open http://localhost:%d in your browser\n", cfg.Server.Port)
	return server.Start()
}
