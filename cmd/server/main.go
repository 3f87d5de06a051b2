package main

import (
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"s3transfer/api"
	"s3transfer/pkg/metrics"
	"s3transfer/pkg/mode"
	"s3transfer/pkg/models"
	"s3transfer/pkg/orchestrator"
	"s3transfer/pkg/scheduler"
	"s3transfer/pkg/storage"
	"s3transfer/pkg/strategy"
)

func main() {
	logrus.SetFormatter(&logrus.JSONFormatter{})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8000"
	}

	cfg := configFromEnv()
	creds := storage.Credentials{
		AccessKey: os.Getenv("AWS_ACCESS_KEY_ID"),
		SecretKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
	}

	stores := storage.NewProvider(creds)
	direct := strategy.NewDirectSync(cfg, strategy.ExecRunner{})
	traditional := strategy.NewTraditional(cfg, stores)
	selector := mode.NewSelector(cfg, direct, traditional, stores, nil)
	orch := orchestrator.New(cfg, selector, traditional, metrics.NewLogSink())

	sched := scheduler.New(orch)
	if err := sched.Start(); err != nil {
		logrus.WithError(err).Fatal("failed to start scheduler")
	}

	server := api.NewServer(orch, sched, stores)
	router := server.SetupRouter()

	logrus.WithField("port", port).Info("starting transfer engine API server")
	if err := router.Run(":" + port); err != nil {
		logrus.WithError(err).Fatal("server exited")
	}
}

func configFromEnv() models.Config {
	cfg := models.DefaultConfig()

	if v := envInt("MAX_CONCURRENT_BATCHES"); v > 0 {
		cfg.MaxConcurrentBatches = v
	}
	if v := envInt("MAX_BATCH_SIZE"); v > 0 {
		cfg.MaxBatchSize = v
	}
	if v := envInt64("BATCH_BYTES_THRESHOLD"); v > 0 {
		cfg.BatchBytesThreshold = v
	}
	if v := os.Getenv("BATCH_STRATEGY"); v != "" {
		cfg.BatchOptimizationStrategy = models.BatchOptimizationStrategy(v)
	}
	if v := envDuration("TOOL_AVAILABILITY_TTL"); v > 0 {
		cfg.ToolAvailabilityTTL = v
	}
	if v := envDuration("SUBPROCESS_TIMEOUT"); v > 0 {
		cfg.SubprocessTimeout = v
	}
	if v := envDuration("FILE_OPERATION_TIMEOUT"); v > 0 {
		cfg.FileOperationTimeout = v
	}
	if v := envInt("TRADITIONAL_FANOUT"); v > 0 {
		cfg.TraditionalFanout = v
	}
	if v := os.Getenv("DEFAULT_MODE"); v != "" {
		cfg.DefaultMode = models.TransferMode(v)
	}
	if v := os.Getenv("TOOL_PATH"); v != "" {
		cfg.ToolPath = v
	}
	if v := envInt("TOOL_CONCURRENCY"); v > 0 {
		cfg.ToolConcurrency = v
	}
	if v := envInt("TOOL_RETRY_COUNT"); v > 0 {
		cfg.ToolRetryCount = v
	}
	if v := envInt("TOOL_PART_SIZE_MB"); v > 0 {
		cfg.ToolPartSizeMB = v
	}
	if v := os.Getenv("TEMP_DIR"); v != "" {
		cfg.TempDir = v
	}

	return cfg.Normalize()
}

func envInt(name string) int {
	v, err := strconv.Atoi(os.Getenv(name))
	if err != nil {
		return 0
	}
	return v
}

func envInt64(name string) int64 {
	v, err := strconv.ParseInt(os.Getenv(name), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func envDuration(name string) time.Duration {
	v, err := time.ParseDuration(os.Getenv(name))
	if err != nil {
		return 0
	}
	return v
}
