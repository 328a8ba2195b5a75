package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"codeblack/internal/common/cache"
	commonmw "codeblack/internal/common/http/middleware"
	"codeblack/internal/common/mq"
	"codeblack/internal/common/storage"
	"codeblack/internal/contest/archive"
	"codeblack/internal/contest/assign"
	"codeblack/internal/contest/auth"
	"codeblack/internal/contest/controller"
	"codeblack/internal/contest/events"
	"codeblack/internal/contest/integrity"
	"codeblack/internal/contest/problem"
	"codeblack/internal/contest/realtime"
	"codeblack/internal/contest/repository"
	"codeblack/internal/contest/state"
	"codeblack/internal/contest/submit"
	"codeblack/internal/judge/evaluator"
	"codeblack/internal/judge/sandbox"
	"codeblack/internal/judge/sandbox/engine"
	"codeblack/internal/judge/sandbox/observer"
	"codeblack/internal/judge/sandbox/profile"
	"codeblack/internal/judge/sandbox/runner"
	"codeblack/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/contest-service.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(appCfg); err != nil {
		logger.Error(context.Background(), "contest service stopped", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(appCfg *AppConfig) error {
	ctx := context.Background()

	bank, err := problem.Load(appCfg.Contest.ProblemsPath)
	if err != nil {
		return fmt.Errorf("load problems: %w", err)
	}

	authService, err := auth.NewService(appCfg.Auth)
	if err != nil {
		return fmt.Errorf("init auth: %w", err)
	}

	machine := state.NewMachine(state.Config{
		Rounds:        appCfg.Contest.Rounds,
		GracePeriod:   appCfg.Contest.GracePeriod,
		CheckInterval: appCfg.Contest.CheckInterval,
		AdminUsers:    authService.Admins(),
	}, bank, assign.NewService(bank))

	languages := profile.NewRegistry(profile.DefaultLanguages())
	eng, err := engine.NewEngine(engine.Config{
		StdoutStderrMaxBytes: appCfg.Sandbox.OutputLimitBytes,
		InitPath:             appCfg.Sandbox.InitPath,
		DenyNetwork:          appCfg.Sandbox.DenyNetwork,
		MaxProcs:             appCfg.Sandbox.MaxProcs,
	})
	if err != nil {
		return fmt.Errorf("init sandbox engine: %w", err)
	}
	worker, err := sandbox.NewWorker(runner.NewRunnerWithObserver(eng, observer.LogRecorder{}), languages, appCfg.Sandbox.Config)
	if err != nil {
		return fmt.Errorf("init sandbox worker: %w", err)
	}

	var external *evaluator.Client
	if appCfg.Judge.Enabled {
		external, err = evaluator.NewClient(appCfg.Judge, nil)
		if err != nil {
			return fmt.Errorf("init external judge: %w", err)
		}
	}
	chain := evaluator.NewChain(external, evaluator.NewLocal(worker))

	var mirror repository.Mirror
	if appCfg.Redis.Enabled {
		redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis.RedisConfig)
		if err != nil {
			return fmt.Errorf("init redis: %w", err)
		}
		defer func() {
			_ = redisCache.Close()
		}()
		mirror = repository.NewRedisMirror(redisCache, appCfg.Redis.TTL)
	}
	repo := repository.NewMemoryRepository(mirror)
	if restored, err := repo.Restore(ctx); err != nil {
		logger.Warn(ctx, "restore submissions failed", zap.Error(err))
	} else if restored > 0 {
		logger.Info(ctx, "submissions restored", zap.Int("count", restored))
	}

	submitCfg := submit.Config{
		Contest:          machine,
		Problems:         bank,
		Evaluator:        chain,
		Languages:        languages,
		Repo:             repo,
		Policy:           appCfg.Contest.scoringPolicy(),
		Review:           appCfg.Contest.reviewPolicy(),
		Grading:          appCfg.Contest.Grading,
		MaxCodeBytes:     appCfg.Contest.MaxCodeBytes,
		BatchConcurrency: appCfg.Contest.BatchConcurrency,
	}
	if appCfg.Storage.Enabled {
		objStorage, err := storage.NewMinIOStorage(appCfg.Storage.MinIOConfig)
		if err != nil {
			return fmt.Errorf("init minio: %w", err)
		}
		archiver, err := archive.NewArchiver(objStorage, appCfg.Storage.Bucket)
		if err != nil {
			return fmt.Errorf("init archiver: %w", err)
		}
		submitCfg.Archiver = archiver
	}
	if appCfg.Events.Enabled {
		producer, err := mq.NewKafkaProducer(appCfg.Events.KafkaConfig)
		if err != nil {
			return fmt.Errorf("init kafka: %w", err)
		}
		defer func() {
			_ = producer.Close()
		}()
		submitCfg.Publisher = events.NewPublisher(producer, appCfg.Events.Topic)
	}
	submitService, err := submit.NewService(submitCfg)
	if err != nil {
		return fmt.Errorf("init submit service: %w", err)
	}

	monitor := integrity.NewMonitor(appCfg.Contest.Integrity, machine)
	hub := realtime.NewHub(appCfg.Realtime, authService, machine, monitor, submitService)
	machine.SetNotifier(hub)

	machine.OnRoundEnd(func(ctx context.Context, round int) {
		n := submitService.AutoSubmit(ctx, round)
		logger.Info(ctx, "auto-submit finished", zap.Int("round", round), zap.Int("count", n))
	})
	machine.OnReset(submitService.Reset)
	machine.OnReset(monitor.Reset)
	machine.OnRevoke(monitor.Revoke)

	httpServer := buildHTTPServer(appCfg.Server, authService, controller.Controllers{
		Auth:       controller.NewAuthController(authService),
		Admin:      controller.NewAdminController(machine, monitor, submitService),
		Competitor: controller.NewCompetitorController(submitService),
		Health:     controller.NewHealthController(machine, chain, hub),
		Realtime:   hub.ServeWS,
		Limiter:    commonmw.NewRateLimiter(appCfg.Server.RateLimit),
	})
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("init http listener: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "contest http server started",
			zap.String("addr", appCfg.Server.Addr),
			zap.Int("rounds", len(appCfg.Contest.Rounds)),
			zap.Bool("external_judge", external != nil),
		)
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	case <-shutdownCtx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(timeoutCtx); err != nil {
		logger.Error(ctx, "http server shutdown failed", zap.Error(err))
	}
	return nil
}

func buildHTTPServer(cfg ServerConfig, authService *auth.Service, controllers controller.Controllers) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContext())
	router.Use(commonmw.RequestLogger())
	router.Use(commonmw.CORS(cfg.CORS))
	controller.Register(router, authService, controllers)

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
}
