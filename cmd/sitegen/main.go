package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	v1 "go_sitegen/api/v1"
	"go_sitegen/internal/archive"
	"go_sitegen/internal/auth"
	"go_sitegen/internal/cache"
	"go_sitegen/internal/config"
	"go_sitegen/internal/db"
	"go_sitegen/internal/deploy"
	"go_sitegen/internal/domaincheck"
	"go_sitegen/internal/generation"
	"go_sitegen/internal/hosting/vercel"
	"go_sitegen/internal/ledger"
	"go_sitegen/internal/publish"
	"go_sitegen/internal/queue"
	"go_sitegen/internal/scaffold"
	"go_sitegen/internal/scheduler"
	"go_sitegen/internal/ws"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Println("✓ Configuration loaded")

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logger := logrus.NewEntry(logrus.StandardLogger())

	// 2. Initialize MySQL
	if err := db.InitMySQL(cfg.MySQL.DSN); err != nil {
		log.Fatalf("Failed to initialize MySQL: %v", err)
	}
	defer db.Close()

	if cfg.Migrate {
		if err := db.Migrate(db.GetDB()); err != nil {
			log.Fatalf("Failed to migrate: %v", err)
		}
		log.Println("✓ Database migrated")
	}

	// 3. Initialize Redis
	rdb, err := cache.OpenRedis(context.Background(), cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to initialize Redis: %v", err)
	}
	defer rdb.Close()

	// 4. Initialize JWT
	auth.InitJWT(cfg.JWT.Secret)
	log.Println("✓ JWT initialized")

	conn := db.GetDB()
	ctx := context.Background()

	// 5. Events
	hub := ws.NewHub(conn)
	if cfg.WebSocket.Enabled {
		if err := hub.InitServer(); err != nil {
			log.Fatalf("Failed to initialize WebSocket: %v", err)
		}
		defer hub.Close()
	}

	// 6. Hosting provider
	provider := vercel.NewClient(vercel.Config{
		APIBase:        cfg.Hosting.APIBase,
		Token:          cfg.Hosting.Token,
		TeamID:         cfg.Hosting.TeamID,
		RequestsPerSec: cfg.Hosting.RequestsPerSec,
		Burst:          cfg.Hosting.Burst,
	})
	orchestrator := deploy.NewOrchestrator(&deploy.Config{
		Backend:           provider,
		Logger:            logger,
		UploadAttempts:    cfg.Hosting.UploadAttempts,
		UploadConcurrency: cfg.Hosting.UploadConcurrency,
		Framework:         cfg.Platform.Framework,
	})

	// 7. Ledger and generation
	versions := ledger.NewService(conn)
	sweeper := ledger.NewSweeper(versions, ledger.SweeperConfig{
		Enabled:    true,
		Interval:   time.Duration(cfg.Generation.SweepIntervalSec) * time.Second,
		StaleAfter: time.Duration(cfg.Generation.StaleAfterMin) * time.Minute,
	})
	sweeper.Start()
	defer sweeper.Stop()

	builder, err := scaffold.NewBuilder()
	if err != nil {
		log.Fatalf("Failed to load scaffold templates: %v", err)
	}

	genCfg := &generation.Config{
		DB:       conn,
		Ledger:   versions,
		Builder:  builder,
		Producer: generation.NewTemplateProducer(builder),
		Events:   hub,
		Budget:   time.Duration(cfg.Generation.BudgetSec) * time.Second,
		Logger:   logger,
	}
	if cfg.Archive.Bucket != "" {
		store, err := archive.NewS3Store(ctx, archive.S3Config{
			Bucket:          cfg.Archive.Bucket,
			Region:          cfg.Archive.Region,
			Endpoint:        cfg.Archive.Endpoint,
			Prefix:          cfg.Archive.Prefix,
			AccessKeyID:     cfg.Archive.AccessKeyID,
			SecretAccessKey: cfg.Archive.SecretAccessKey,
		})
		if err != nil {
			log.Fatalf("Failed to initialize archive store: %v", err)
		}
		genCfg.Archiver = store
		log.Printf("✓ Version archives go to s3://%s/%s", cfg.Archive.Bucket, cfg.Archive.Prefix)
	}
	generator := generation.NewService(genCfg)

	// 8. Domain verification
	checker := domaincheck.NewChecker(&domaincheck.Config{
		DB:          conn,
		Provider:    provider,
		Events:      hub,
		BaseDomain:  cfg.Platform.BaseDomain,
		MaxAttempts: cfg.DomainWorker.MaxAttempts,
		Logger:      logger,
	})
	worker := domaincheck.NewWorker(checker, domaincheck.WorkerConfig{
		Enabled:     cfg.DomainWorker.Enabled,
		IntervalSec: cfg.DomainWorker.IntervalSec,
		BatchSize:   cfg.DomainWorker.BatchSize,
	})
	worker.Start()
	defer worker.Stop()

	var verifier publish.VerifyTrigger = domaincheck.NewAsyncTrigger(checker, 30*time.Second)
	consumerCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()
	if cfg.AMQP.URL != "" {
		amqpConn, err := queue.Dial(cfg.AMQP.URL)
		if err != nil {
			log.Fatalf("Failed to connect to RabbitMQ: %v", err)
		}
		defer amqpConn.Close()

		pub, err := queue.NewPublisher(amqpConn, cfg.AMQP.Queue)
		if err != nil {
			log.Fatalf("Failed to open verify publisher: %v", err)
		}
		defer pub.Close()
		verifier = pub

		consumer, err := queue.NewConsumer(amqpConn, cfg.AMQP.Queue, 4)
		if err != nil {
			log.Fatalf("Failed to open verify consumer: %v", err)
		}
		defer consumer.Close()
		go func() {
			err := consumer.Handle(consumerCtx, func(ctx context.Context, msg queue.VerifyMessage) error {
				_, err := checker.Check(ctx, msg.UserID, msg.DomainID)
				return err
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("[Queue] Verify consumer stopped: %v", err)
			}
		}()
		log.Printf("✓ Domain verification queued on %s", cfg.AMQP.Queue)
	}

	// 9. Publish
	coordinator := publish.NewCoordinator(&publish.Config{
		DB:               conn,
		Ledger:           versions,
		Orchestrator:     orchestrator,
		Aliases:          provider,
		Locker:           cache.NewLocker(rdb, "sitegen:lock:"),
		Events:           hub,
		Verifier:         verifier,
		BaseDomain:       cfg.Platform.BaseDomain,
		Budget:           time.Duration(cfg.Publish.BudgetSec) * time.Second,
		PollInterval:     time.Duration(cfg.Publish.PollIntervalMs) * time.Millisecond,
		LockTTL:          time.Duration(cfg.Publish.LockTTLSec) * time.Second,
		BatchConcurrency: cfg.Publish.BatchConcurrency,
		Logger:           logger,
	})

	sched := scheduler.New(coordinator, time.Hour)
	if cfg.Publish.RepublishCron != "" {
		if err := sched.AddRepublish(cfg.Publish.RepublishCron); err != nil {
			log.Fatalf("Failed to schedule re-publish: %v", err)
		}
	}
	sched.Start()
	defer sched.Stop()

	// 10. Initialize Gin router
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	v1.SetupRouter(r, &v1.Deps{
		DB:          conn,
		Ledger:      versions,
		Generation:  generator,
		Coordinator: coordinator,
		Checker:     checker,
		Hub:         hub,
		Admin:       cfg.Admin,
		JWT:         cfg.JWT,
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	go func() {
		log.Printf("✓ Server starting on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// let in-flight generations finish recording their outcome
	generator.Wait()
	log.Println("✓ Server exited")
}
