package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"stride/internal/actions"
	"stride/internal/assistant"
	"stride/internal/config"
	"stride/internal/history"
	"stride/internal/registry"
	"stride/internal/snapshot"
	"stride/internal/store"
	"stride/internal/types"
)

var (
	verbose    bool
	configPath string
	userID     string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "stride",
	Short: "Stride - goal tracking with a conversational assistant",
	Long: `Stride tracks objectives, key results and tasks, and answers questions
about them through a conversational assistant.

The assistant may ask for additional context (your goals, schedule, groups);
Stride negotiates those requests automatically, within a bounded retry
budget, and asks for confirmation before executing any proposed change.

Run without arguments to start the interactive chat.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat()
	},
}

var askCmd = &cobra.Command{
	Use:   "ask [message]",
	Short: "Send a single message and print the settled reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp()
		if err != nil {
			return err
		}
		defer app.close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		res, err := app.engine.Send(ctx, strings.Join(args, " "), func(fragment string) {
			fmt.Print(fragment)
		})
		if err != nil {
			return err
		}
		fmt.Println()
		printOutcome(app, res)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the Stride version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(config.Default().Version)
	},
}

// app bundles the wired components behind the CLI.
type app struct {
	cfg      *config.Config
	engine   *assistant.Engine
	executor *actions.Executor
	hist     *history.Store
}

func (a *app) close() {
	if a.hist != nil {
		_ = a.hist.Close()
	}
}

// historyAdapter binds the engine's History hook to one conversation.
type historyAdapter struct {
	store          *history.Store
	conversationID string
}

func (h *historyAdapter) Append(ctx context.Context, m types.Message) error {
	return h.store.Append(ctx, h.conversationID, m)
}

func buildApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	storeClient := store.NewClient(store.Config{
		BaseURL: cfg.Store.BaseURL,
		Timeout: cfg.StoreTimeout(),
	}, logger.Named("store"))

	snap := snapshot.New(nil)
	refresher := snapshot.NewRefresher(storeClient, snap, logger.Named("snapshot"))

	// Best effort: an unreachable store leaves the snapshot empty until a
	// later refresh succeeds.
	if err := refresher.Refresh(context.Background()); err != nil {
		logger.Warn("initial snapshot fetch failed", zap.Error(err))
	}

	hist, err := history.Open(cfg.History.Path)
	if err != nil {
		return nil, err
	}
	logger.Debug("history store opened", zap.String("path", hist.Path()))

	assistantClient := assistant.NewClient(assistant.ClientConfig{
		BaseURL: cfg.Assistant.BaseURL,
		Timeout: cfg.AssistantTimeout(),
	}, logger.Named("assistant"))

	reg := registry.New(logger.Named("registry"))

	engine := assistant.NewEngine(
		assistantClient,
		snap,
		reg,
		&historyAdapter{store: hist, conversationID: userID},
		assistant.EngineConfig{
			UserID:           userID,
			DisplayName:      cfg.Assistant.DisplayName,
			SystemPromptData: cfg.Assistant.SystemPromptData,
			Limits: assistant.Limits{
				Data:       cfg.Retry.DataBudget,
				Capability: cfg.Retry.CapabilityBudget,
			},
		},
		logger.Named("engine"),
	)

	window, err := hist.Window(context.Background(), userID, cfg.History.Window)
	if err != nil {
		logger.Warn("could not preload history", zap.Error(err))
	} else {
		engine.Preload(window)
	}

	return &app{
		cfg:      cfg,
		engine:   engine,
		executor: actions.NewExecutor(storeClient, snap, refresher, logger.Named("executor")),
		hist:     hist,
	}, nil
}

func runChat() error {
	app, err := buildApp()
	if err != nil {
		return err
	}
	defer app.close()

	fmt.Println("Stride assistant. Type a message, /reset to clear the conversation, /quit to exit.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit", line == "/exit":
			return nil
		case line == "/reset":
			app.engine.Reset()
			fmt.Println("Conversation cleared.")
			continue
		}

		// SIGINT aborts the in-flight turn, not the program.
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		res, err := app.engine.Send(ctx, line, func(fragment string) {
			fmt.Print(fragment)
		})
		stop()
		if err != nil {
			fmt.Printf("\nThe assistant could not be reached (%v). Try again.\n", err)
			continue
		}
		fmt.Println()
		printOutcome(app, res)
	}
	return scanner.Err()
}

func printOutcome(app *app, res *assistant.Result) {
	if res.Reason == assistant.TurnAborted {
		return
	}
	if res.Notice != "" {
		fmt.Println(res.Notice)
	}
	if len(res.Commands) == 0 {
		return
	}

	fmt.Println("\nProposed changes:")
	for i, cmd := range res.Commands {
		fmt.Printf("  %d. %s\n", i+1, cmd.Label)
	}
	fmt.Print("Run all? [y/N] ")

	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	if answer != "y" && answer != "yes" {
		fmt.Println("Skipped.")
		return
	}

	result := app.executor.ExecuteAll(context.Background(), res.Commands)
	if result.Failed != nil {
		fmt.Printf("%d of %d changes applied; %s\n", result.Executed, len(res.Commands), result.Failed.Error())
		return
	}
	fmt.Printf("All %d changes applied.\n", result.Executed)
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "stride.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVar(&userID, "user", "local", "user id for history and notifications")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
