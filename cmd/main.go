package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	infra "github.com/roundy-world/lesson-server/internal/infrastructure"
	"github.com/roundy-world/lesson-server/internal/infrastructure/driver"
	"github.com/roundy-world/lesson-server/internal/infrastructure/logging"
	"github.com/roundy-world/lesson-server/internal/infrastructure/metrics"
	"github.com/roundy-world/lesson-server/internal/infrastructure/uuid"
	"github.com/roundy-world/lesson-server/internal/infrastructure/validate"
	"github.com/roundy-world/lesson-server/internal/interfaces/rest"
	"github.com/roundy-world/lesson-server/internal/lesson"
	"github.com/roundy-world/lesson-server/internal/sandbox"
	"github.com/roundy-world/lesson-server/internal/user"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	log.SetFlags(log.Lshortfile | log.Ldate | log.Ltime)
	option, err := infra.InitConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := logging.NewLogger(&logging.Config{
		FilePath: option.Logging.FilePath,
		Level:    option.Logging.Level,
		AppID:    option.AppID,
		Env:      option.Env,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %s\n", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbConn, err := driver.GetDBConnection(&driver.DBConfig{
		User:     option.Database.User,
		Password: option.Database.Password,
		MaxConn:  option.Database.MaxConn,
		Protocol: option.Database.Protocol,
		Driver:   option.Database.Driver,
		Host:     option.Database.Host,
		Port:     option.Database.Port,
		Query:    option.Database.Query,
		Schema:   option.Database.Schema,
	})
	if err != nil {
		logger.Fatal("Failed to create DB connection", zap.Error(err))
	}
	defer dbConn.Close(context.Background())
	logger.Debug("Create DB connection instance", zap.String("db.driver", option.Database.Driver),
		zap.String("db.schema", option.Database.Schema),
		zap.String("db.host", option.Database.Host),
	)
	if option.Database.Migrate {
		if err := driver.Migrate(logging.SetLoggerInContext(ctx, logger), dbConn); err != nil {
			logger.Fatal("Failed to migrate database", zap.Error(err))
		}
		logger.Info("Database schema is up to date")
	}

	var kv driver.KeyValueDB
	if option.Progress.Driver == "memory" {
		kv = driver.NewMemoryKV()
	} else {
		redisClient := driver.NewRedisClient(&driver.RedisConfig{
			Host:     option.KVStore.Host,
			Port:     option.KVStore.Port,
			Password: option.KVStore.Password,
			DB:       option.KVStore.DB,
			Retries:  option.KVStore.Retries,
		})
		defer redisClient.Close()
		kv = redisClient
	}

	UUIDGenerator := uuid.NewNanoIDGenerator(option.Security.IDLength)
	Metrics := metrics.NewMetrics()

	catalog, err := lesson.LoadCatalog(option.Lessons.CatalogPath, option.Lessons.DefaultReward, validate.NewValidator("es"))
	if err != nil {
		logger.Fatal("Failed to load lesson catalog", zap.Error(err), zap.String("path", option.Lessons.CatalogPath))
	}
	logger.Info("Lesson catalog loaded", zap.Int("lessons", catalog.Len()))

	Runner := sandbox.NewRunner(sandbox.Options{
		CallTimeout:       option.Sandbox.CallTimeout,
		SubmissionTimeout: option.Sandbox.SubmissionTimeout,
		MaxConcurrent:     option.Sandbox.MaxConcurrent,
		AcquireTimeout:    option.Sandbox.AcquireTimeout,
		MaxCallStack:      option.Sandbox.MaxCallStack,
		MaxConsoleLines:   option.Sandbox.MaxConsoleLines,
	}, Metrics)

	var ProgressRepo lesson.ProgressRepository
	switch option.Progress.Driver {
	case "sql":
		ProgressRepo = lesson.NewProgressSQL(dbConn, UUIDGenerator)
	default:
		ProgressRepo = lesson.NewProgressKV(kv, option.KVStore.Prefix, UUIDGenerator)
	}
	logger.Info("Progress store ready", zap.String("progress.driver", option.Progress.Driver))

	UserRepo := user.NewUserRepository(dbConn)
	UserUseCase := user.NewUserUseCase(UserRepo, UUIDGenerator, option.Security.MaxLoginAttempts, option.Security.RetryTimeout)
	LessonUseCase := lesson.NewLessonUseCase(catalog, ProgressRepo, option.Lessons.HistoryLimit)
	ValidationUseCase := lesson.NewLessonValidator(catalog, ProgressRepo, Runner, option.Sandbox.MaxSourceLength, Metrics)

	app := rest.NewApp(dbConn, kv, option, UserUseCase, LessonUseCase, ValidationUseCase, logger)
	logger.Info("Server started", zap.String("host", option.Host), zap.Int("port", option.Port))
	if err := rest.Serve(ctx, app, option, shutdownTimeout); err != nil {
		logger.Error("Server stopped", zap.Error(err))
		return
	}
	logger.Info("Server stopped")
}
