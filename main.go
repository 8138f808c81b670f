// Package main provides the main entry point for the gymdesk reminder and campaign service
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amirphl/gymdesk/app/handlers"
	"github.com/amirphl/gymdesk/app/middleware"
	"github.com/amirphl/gymdesk/app/router"
	"github.com/amirphl/gymdesk/app/scheduler"
	"github.com/amirphl/gymdesk/app/services"
	businessflow "github.com/amirphl/gymdesk/business_flow"
	"github.com/amirphl/gymdesk/config"
	_ "github.com/amirphl/gymdesk/docs"
	"github.com/amirphl/gymdesk/models"
	"github.com/amirphl/gymdesk/repository"
	"github.com/amirphl/gymdesk/utils"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// @title						gymdesk API
// @version					1.0
// @description				Gym CRM reminders, campaigns and delivery sweeps
// @BasePath					/api/v1
// @securityDefinitions.apikey	BearerAuth
// @in							header
// @name						Authorization
// @securityDefinitions.apikey	CronSecret
// @in							header
// @name						x-cron-secret

// Application represents the main application structure
type Application struct {
	router    router.Router
	config    *config.ProductionConfig
	stopFuncs []func()
}

func main() {
	log.Println("Starting gymdesk application...")

	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	app.router.SetupRoutes()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Printf("Server starting on %s (env=%s, version=%s)", address, cfg.Deployment.Environment, cfg.Deployment.Version)

		if err := app.router.Start(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-sigChan
	log.Println("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.router.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	// Stop background workers after the server so in-flight cron requests can finish
	for i := len(app.stopFuncs) - 1; i >= 0; i-- {
		app.stopFuncs[i]()
	}

	log.Println("Server stopped")
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	level := logger.Warn
	if !cfg.SlowQueryLog {
		level = logger.Error
	}
	slow := cfg.SlowQueryTime
	if slow <= 0 {
		slow = time.Second
	}
	baseLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             slow,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: utils.NewFilteredGormLogger(baseLogger, "FOR UPDATE SKIP LOCKED"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	if cfg.AutoMigrate {
		if err := db.AutoMigrate(models.All()...); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		log.Println("Database schema migrated")
	}

	return db, nil
}

// initializeCache initializes the Redis client and verifies connectivity. It returns nil when caching is disabled.
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Redis connection established (db=%d)", cfg.RedisDB)
	return rc, nil
}

// startCacheHealthMonitor periodically pings Redis so an outage shows up in the logs
// before the next sweep hits it. The returned cancel function stops the monitor.
func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(context.Background(), 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					log.Printf("Redis healthcheck failed: %v", err)
				}
				c()
			}
		}
	}()
	return cancel
}

// initializeSenders builds the delivery providers once per process
func initializeSenders(cfg *config.ProductionConfig) (services.MessagingSender, services.EmailSender, error) {
	whatsapp, err := services.NewMessagingSender(&cfg.WhatsApp)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize WhatsApp sender: %w", err)
	}
	email, err := services.NewEmailSender(&cfg.Email)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize email sender: %w", err)
	}
	return whatsapp, email, nil
}

// initializeApplication initializes the main application components
func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	var stopFuncs []func()

	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}

	var locker businessflow.SweepLocker = businessflow.NoopSweepLocker{}
	if rc != nil {
		stopFuncs = append(stopFuncs, startCacheHealthMonitor(context.Background(), rc, 30*time.Second))
		stopFuncs = append(stopFuncs, func() { _ = rc.Close() })
		locker = businessflow.NewRedisSweepLocker(rc, cfg.Cache.RedisPrefix+"sweep_lock:")
	} else {
		log.Println("Redis disabled; sweeps rely on row claims only")
	}

	// Initialize repositories
	clientRepo := repository.NewClientRepository(db)
	reminderRepo := repository.NewReminderRepository(db)
	ruleRepo := repository.NewRuleRepository(db)
	campaignRepo := repository.NewCampaignRepository(db)
	sweepRunRepo := repository.NewSweepRunRepository(db)
	conversationRepo := repository.NewConversationRepository(db)
	messageRepo := repository.NewConversationMessageRepository(db)
	settingsRepo := repository.NewChatbotSettingsRepository(db)
	txRunner := repository.NewTxRunner(db)

	// Initialize services
	whatsappSender, emailSender, err := initializeSenders(cfg)
	if err != nil {
		return nil, err
	}

	publisher, err := services.NewEventPublisher(&cfg.Events)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize event publisher: %w", err)
	}
	stopFuncs = append(stopFuncs, func() {
		if err := publisher.Close(); err != nil {
			log.Printf("Failed to close event publisher: %v", err)
		}
	})

	agent := services.NewAgentService(&cfg.Agent)

	tokenService, err := services.NewTokenService(
		cfg.JWT.AccessTokenTTL,
		cfg.JWT.Issuer,
		cfg.JWT.Audience,
		cfg.JWT.UseRSAKeys,
		"",
		cfg.JWT.PublicKey,
		cfg.JWT.SecretKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}
	if impl, ok := tokenService.(*services.TokenServiceImpl); ok && rc != nil {
		impl.WithRevocationStore(rc, cfg.Cache.RedisPrefix)
	}

	log.Printf("Token service initialized with issuer: %s, audience: %s", cfg.JWT.Issuer, cfg.JWT.Audience)

	// Initialize flows
	dispatcher := businessflow.NewDispatcher(whatsappSender, emailSender, cfg.Email.Subject)

	clientFlow := businessflow.NewClientFlow(clientRepo)
	reminderFlow := businessflow.NewReminderFlow(reminderRepo, clientRepo, dispatcher, publisher)
	ruleFlow := businessflow.NewRuleFlow(ruleRepo, clientRepo, txRunner)
	sweepFlow := businessflow.NewSweepFlow(
		reminderRepo,
		clientRepo,
		sweepRunRepo,
		dispatcher,
		publisher,
		locker,
		cfg.Scheduler,
	)
	campaignFlow := businessflow.NewCampaignFlow(
		campaignRepo,
		reminderRepo,
		clientRepo,
		sweepRunRepo,
		txRunner,
		locker,
		cfg.Scheduler,
	)
	expansionFlow := businessflow.NewRuleExpansionFlow(
		ruleRepo,
		clientRepo,
		reminderRepo,
		campaignRepo,
		sweepRunRepo,
		locker,
		cfg.Scheduler,
	)
	conversationFlow := businessflow.NewConversationFlow(
		conversationRepo,
		messageRepo,
		settingsRepo,
		clientRepo,
		txRunner,
		agent,
	)

	// Initialize handlers
	h := router.Handlers{
		Auth:          handlers.NewAuthHandler(tokenService),
		Client:        handlers.NewClientHandler(clientFlow),
		Reminder:      handlers.NewReminderHandler(reminderFlow),
		ReminderRules: handlers.NewRuleHandler(ruleFlow, models.RuleKindReminder),
		CampaignRules: handlers.NewRuleHandler(ruleFlow, models.RuleKindCampaign),
		Campaign:      handlers.NewCampaignHandler(campaignFlow),
		Conversation:  handlers.NewConversationHandler(conversationFlow),
		Cron:          handlers.NewCronHandler(sweepFlow, campaignFlow, expansionFlow),
	}

	probes := map[string]router.HealthProbe{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if rc != nil {
		probes["redis"] = func(ctx context.Context) error { return rc.Ping(ctx).Err() }
	}

	authMiddleware := middleware.NewAuthMiddleware(tokenService)
	appRouter := router.NewFiberRouter(cfg, h, authMiddleware, probes)

	if cfg.Scheduler.Enabled {
		sched, err := scheduler.NewScheduler(cfg.Scheduler, cfg.Logging, sweepFlow, campaignFlow, expansionFlow)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize scheduler: %w", err)
		}
		stopScheduler, err := sched.Start(context.Background())
		if err != nil {
			return nil, fmt.Errorf("failed to start scheduler: %w", err)
		}
		stopFuncs = append(stopFuncs, stopScheduler)
	}

	return &Application{
		router:    appRouter,
		config:    cfg,
		stopFuncs: stopFuncs,
	}, nil
}
