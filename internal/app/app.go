package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/IbrahimO9/discord-music-bot/config"
	"github.com/IbrahimO9/discord-music-bot/internal/bot"
	"github.com/IbrahimO9/discord-music-bot/internal/health"
	"github.com/IbrahimO9/discord-music-bot/internal/services/audio"
	"github.com/IbrahimO9/discord-music-bot/internal/services/playback"
	"github.com/IbrahimO9/discord-music-bot/internal/services/resolver"
	"github.com/IbrahimO9/discord-music-bot/internal/services/search"
	"github.com/IbrahimO9/discord-music-bot/pkg/dependency"
	"github.com/IbrahimO9/discord-music-bot/pkg/logger"
	"github.com/IbrahimO9/discord-music-bot/pkg/metrics"
)

// Version is set at build time
var Version = "dev"

const shutdownTimeout = 15 * time.Second

// Application wires every component of the bot together
type Application struct {
	config     *config.Config
	logger     *logger.Logger
	metrics    *metrics.Metrics
	discord    *discordgo.Session
	controller *playback.Controller
	bot        *bot.Bot
	health     *health.Server
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewLogger builds the process logger from config and installs it as default
func NewLogger(cfg *config.Config) (*logger.Logger, error) {
	appLogger, err := logger.NewLogger(logger.LoggerConfig{
		Level:            cfg.Logging.Level,
		OutputFile:       cfg.Logging.OutputFile,
		MaxFileSizeMB:    cfg.Logging.MaxFileSizeMB,
		MaxBackups:       cfg.Logging.MaxBackups,
		MaxAgeDays:       cfg.Logging.MaxAgeDays,
		EnableConsole:    cfg.Logging.EnableConsole,
		EnableFile:       cfg.Logging.EnableFile,
		EnableJSON:       cfg.Logging.EnableJSON,
		EnableStackTrace: cfg.Logging.EnableStackTrace,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.SetDefault(appLogger)
	return appLogger, nil
}

// NewResolver builds the configured stream resolver with logging and metrics attached
func NewResolver(cfg *config.Config, log *logger.Logger, m *metrics.Metrics) (resolver.Resolver, error) {
	res, err := resolver.New(cfg.Resolver)
	if err != nil {
		return nil, err
	}
	return resolver.Instrument(res, cfg.Resolver.Backend, log, m), nil
}

// Run starts the bot and blocks until SIGINT or SIGTERM
func Run(cfg *config.Config) error {
	appLogger, err := NewLogger(cfg)
	if err != nil {
		return err
	}
	appLogger.LogStartup(Version)
	appLogger.Info("Configuration loaded", logger.Fields{
		"bot_token":        cfg.GetRedactedToken(),
		"log_level":        appLogger.GetLevel(),
		"resolver_backend": cfg.Resolver.Backend,
		"guild_id":         cfg.Discord.GuildID,
		"search_api_key":   cfg.Search.APIKey != "",
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Features.CheckDependencies {
		if err := checkDependencies(ctx, cfg.Resolver.Backend, appLogger); err != nil {
			return err
		}
	}

	m := metrics.Global()
	if !cfg.Features.EnableMetrics {
		m.Disable()
	}

	app := &Application{
		config:  cfg,
		logger:  appLogger,
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
	}

	if err := app.initialize(); err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	if err := app.start(); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}

	app.waitForShutdown()

	if err := app.shutdown(); err != nil {
		appLogger.Error("Error during shutdown", err)
	}
	appLogger.LogShutdown("Signal received", true)
	return nil
}

func (app *Application) initialize() error {
	session, err := discordgo.New("Bot " + app.config.Discord.Token)
	if err != nil {
		return fmt.Errorf("failed to create Discord session: %w", err)
	}
	app.discord = session

	res, err := NewResolver(app.config, app.logger, app.metrics)
	if err != nil {
		return err
	}

	searcher, err := search.NewService(app.ctx, app.config.Search.APIKey, app.config.Search.Timeout, app.logger)
	if err != nil {
		return err
	}

	gateway := audio.NewGateway(session, app.config.Audio, app.config.Resolver.UserAgent, app.logger)
	pb := app.config.Playback
	app.controller = playback.NewController(gateway, res, bot.NewNotifier(session), playback.Options{
		StreamTTL:        pb.StreamTTL,
		ConnectTimeout:   pb.ConnectTimeout,
		ReconnectTimeout: pb.ReconnectTimeout,
		ResolveTimeout:   pb.ResolveTimeout,
		StopTimeout:      pb.StopTimeout,
	}, app.logger, app.metrics)

	app.bot = bot.New(session, app.controller, searcher, bot.Options{
		GuildID:       app.config.Discord.GuildID,
		RemoveOnClose: app.config.Discord.RemoveOnClose,
	}, app.logger, app.metrics)
	app.bot.Register()

	session.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) {
		app.logger.Warn("Discord gateway disconnected")
		app.metrics.IncCounter("discord_disconnect")
	})

	if app.config.Features.EnableHealthServer {
		app.health = health.NewServer(app.config.Server.Port, app.controller.Registry(), app.metrics, app.logger)
	}

	app.logger.Info("Application initialized successfully")
	return nil
}

func (app *Application) start() error {
	if app.health != nil {
		app.health.Start()
	}

	if err := app.discord.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}

	if app.metrics.IsEnabled() {
		go metrics.NewCollector(app.metrics, 30*time.Second).Run(app.ctx)
	}

	app.logger.Info("Application started successfully")
	return nil
}

func (app *Application) waitForShutdown() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	<-stop
	app.logger.Info("Shutdown signal received")
}

func (app *Application) shutdown() error {
	app.logger.Info("Starting graceful shutdown")
	app.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.controller.Shutdown(ctx); err != nil {
		app.logger.Error("Failed to stop playback sessions", err)
	}

	app.bot.Close()

	if app.health != nil {
		if err := app.health.Shutdown(ctx); err != nil {
			app.logger.Error("Failed to stop HTTP server", err)
		}
	}

	if err := app.discord.Close(); err != nil {
		return fmt.Errorf("failed to close Discord session: %w", err)
	}

	app.logger.Info("Graceful shutdown completed")
	return nil
}

func checkDependencies(ctx context.Context, backend string, appLogger *logger.Logger) error {
	appLogger.Info("Checking system dependencies")

	report := dependency.ValidateEnvironment(ctx, backend)
	appLogger.Info("Dependency check completed", logger.Fields{
		"severity":         report.Severity,
		"required_missing": len(report.RequiredMissing),
		"optional_missing": len(report.OptionalMissing),
	})

	if !report.IsHealthy() {
		fmt.Fprintln(os.Stderr, report.GenerateReport())
		return fmt.Errorf("required dependencies are missing: %v", report.RequiredMissing)
	}
	return nil
}
