package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/edgard/assistbot/internal/bot"
	"github.com/edgard/assistbot/internal/bot/handlers"
	"github.com/edgard/assistbot/internal/bot/tasks"
	"github.com/edgard/assistbot/internal/config"
	"github.com/edgard/assistbot/internal/conversation"
	"github.com/edgard/assistbot/internal/database"
	"github.com/edgard/assistbot/internal/dispatch"
	"github.com/edgard/assistbot/internal/intent"
	"github.com/edgard/assistbot/internal/kv"
	"github.com/edgard/assistbot/internal/logger"
	"github.com/edgard/assistbot/internal/parser"
	"github.com/edgard/assistbot/internal/ratelimit"
	"github.com/edgard/assistbot/internal/target"
	"github.com/edgard/assistbot/internal/telegram"
	"github.com/edgard/assistbot/internal/wake"

	_ "modernc.org/sqlite"
)

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if code := run(cmd.Context(), configPath); code != 0 {
				return fmt.Errorf("bot exited with code %d", code)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "./config.yaml", "Path to configuration file")
	return cmd
}

// state holds the short-lived key-value state and rate limit backends.
// Memory-only fields are nil when Redis is used.
type state struct {
	kv      kv.Store
	memory  *kv.MemoryStore
	command ratelimit.Backend
	costly  ratelimit.Backend
	buckets []tasks.BucketCleaner
	redis   *redis.Client
}

func newState(ctx context.Context, cfg config.StoreConfig) (*state, error) {
	if kv.StoreType(cfg.Type) != kv.StoreTypeRedis {
		mem := kv.NewMemoryStore()
		command := ratelimit.NewMemoryBackend(nil)
		costly := ratelimit.NewMemoryBackend(nil)
		return &state{
			kv:      mem,
			memory:  mem,
			command: command,
			costly:  costly,
			buckets: []tasks.BucketCleaner{command, costly},
		}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	store, err := kv.NewStore(kv.StoreTypeRedis, kv.WithRedisClient(client), kv.WithRedisPrefix(cfg.RedisPrefix))
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return &state{
		kv:      store,
		command: ratelimit.NewRedisBackend(client, cfg.RedisPrefix+"rl:command:"),
		costly:  ratelimit.NewRedisBackend(client, cfg.RedisPrefix+"rl:costly:"),
		redis:   client,
	}, nil
}

func (s *state) Close() error {
	if s.redis != nil {
		return s.redis.Close()
	}
	return s.kv.Close()
}

// run initializes and starts all application components, handles graceful
// shutdown and returns an exit code.
func run(ctx context.Context, configPath string) int {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Log.Level, cfg.Log.JSON)
	log.Info("Logger initialized", "level", cfg.Log.Level, "json", cfg.Log.JSON)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	st, err := newState(ctx, cfg.Store)
	if err != nil {
		log.Error("Failed to initialize state store", "type", cfg.Store.Type, "error", err)
		return 1
	}
	defer st.Close()

	// The dispatcher needs the Telegram client to reply, and the client
	// needs the default handler, so the handler binds to it late.
	var dispatcher *dispatch.Dispatcher
	hDeps := handlers.HandlerDeps{
		Logger: log,
		Config: cfg,
		Dispatcher: handlers.DispatchFunc(func(ctx context.Context, msg dispatch.Message) {
			dispatcher.Handle(ctx, msg)
		}),
	}

	botOpts := []tgbot.Option{
		tgbot.WithMiddlewares(logger.Middleware(log), handlers.IgnoreBots(hDeps)),
		tgbot.WithDefaultHandler(handlers.NewMessageHandler(hDeps)),
		tgbot.WithErrorsHandler(func(err error) { log.Error("Telegram client error", "error", err) }),
	}
	if cfg.Telegram.PollTimeout > 0 {
		botOpts = append(botOpts, tgbot.WithHTTPClient(cfg.Telegram.PollTimeout, &http.Client{Timeout: cfg.Telegram.PollTimeout + 10*time.Second}))
	}
	tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log, botOpts...)
	if err != nil {
		log.Error("Failed to create Telegram bot", "error", err)
		return 1
	}

	cfg.Telegram.BotInfo, err = tg.GetMe(ctx)
	if err != nil {
		log.Error("Failed to get bot info", "error", err)
		return 1
	}
	log.Info("Retrieved bot info", "bot_id", cfg.Telegram.BotInfo.ID, "bot_username", cfg.Telegram.BotInfo.Username)

	dispatcher, err = newDispatcher(ctx, cfg, log, store, st, telegram.NewReplier(tg, cfg.Telegram.SendTimeout, log))
	if err != nil {
		log.Error("Failed to create dispatcher", "error", err)
		return 1
	}

	cmdHandlers := handlers.RegisterAllCommands(hDeps)
	if err := telegram.RegisterHandlers(tg, log, cmdHandlers); err != nil {
		log.Error("Failed to register Telegram handlers", "error", err)
		return 1
	}
	if err := telegram.SetCommands(ctx, tg, log, cmdHandlers); err != nil {
		log.Warn("Failed to publish command menu", "error", err)
	}
	if cfg.Telegram.DropPendingUpdates {
		if _, err := tg.DeleteWebhook(ctx, &tgbot.DeleteWebhookParams{DropPendingUpdates: true}); err != nil {
			log.Warn("Failed to drop pending updates", "error", err)
		}
	}

	tDeps := tasks.TaskDeps{
		Logger:  log,
		Store:   store,
		Buckets: st.buckets,
		Config:  cfg,
	}
	if st.memory != nil {
		tDeps.State = st.memory
	}
	sched, err := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tDeps))
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}
	app := bot.NewBot(log, tg, sched)

	log.Info("Starting bot...")
	runErr := app.Run(ctx)
	log.Info("Bot run loop finished. Initiating shutdown...")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bot stopped due to error", "error", runErr)
		return 1
	}

	log.Info("Bot stopped gracefully.")
	return 0
}

func newDispatcher(ctx context.Context, cfg *config.Config, log *slog.Logger, store database.Store, st *state, replier dispatch.Replier) (*dispatch.Dispatcher, error) {
	table := intent.DefaultTable()
	var classifierOpts []intent.Option
	if cfg.Intent.Gemini.Enabled {
		rec, err := intent.NewGeminiRecognizer(ctx, cfg.Intent.Gemini.GeminiConfig, table, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini recognizer: %w", err)
		}
		classifierOpts = append(classifierOpts, intent.WithFallback(rec))
		log.Info("Gemini fallback enabled", "model", cfg.Intent.Gemini.ModelName)
	}
	classifier := intent.NewClassifier(table, st.kv, cfg.Intent.Config, log, classifierOpts...)

	p := parser.New(log)
	directory := target.NewStoreDirectory(store)
	conversations := conversation.NewManager(cfg.Conversation, conversation.Deps{
		Store:      st.kv,
		Parser:     p,
		Reminders:  store,
		Categories: store,
		Targets:    target.NewResolver(directory, directory, log),
		Messages:   cfg.ConversationMessages(),
		Logger:     log,
	})

	return dispatch.NewDispatcher(cfg.Dispatch, dispatch.Deps{
		Gate:          wake.NewGate(cfg.Wake(), st.kv, log),
		Classifier:    classifier,
		Conversations: conversations,
		Parser:        p,
		Commands:      ratelimit.New("command", cfg.RateLimit.Command, st.command, st.kv, log),
		Costly:        ratelimit.New("costly", cfg.RateLimit.Costly, st.costly, st.kv, log),
		Reminders:     store,
		Categories:    store,
		Games:         store,
		Guilds:        store,
		Directory:     store,
		Replier:       replier,
		Messages:      cfg.ReplyMessages(),
		Logger:        log,
	})
}
