package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port            int
	DataDir         string
	MaxUploadSizeMB int

	// Concurrency knobs
	AsyncWorkers  int
	BatchWorkers  int
	QueueCapacity int
	SyncSlots     int
	SyncWait      time.Duration

	// Lifecycle knobs
	JobTTL          time.Duration
	CleanupInterval time.Duration
	ConvertTimeout  time.Duration

	// Rate limiting
	RateLimitRPS   float64
	RateLimitBurst int
}

func Load() (*Config, error) {
	port, err := intEnv("PORT", 8090)
	if err != nil {
		return nil, err
	}

	maxUploadSizeMB, err := intEnv("MAX_UPLOAD_SIZE_MB", 200)
	if err != nil {
		return nil, err
	}

	asyncWorkers, err := intEnv("ASYNC_WORKERS", 2)
	if err != nil {
		return nil, err
	}

	batchWorkers, err := intEnv("BATCH_WORKERS", 4)
	if err != nil {
		return nil, err
	}

	queueCapacity, err := intEnv("QUEUE_CAPACITY", 1000)
	if err != nil {
		return nil, err
	}

	syncSlots, err := intEnv("SYNC_SLOTS", 2)
	if err != nil {
		return nil, err
	}

	syncWaitMS, err := intEnv("SYNC_WAIT_TIMEOUT_MS", 0)
	if err != nil {
		return nil, err
	}

	ttlHours, err := intEnv("JOB_TTL_HOURS", 24)
	if err != nil {
		return nil, err
	}

	cleanupMinutes, err := intEnv("CLEANUP_INTERVAL_MINUTES", 30)
	if err != nil {
		return nil, err
	}

	convertMinutes, err := intEnv("CONVERT_TIMEOUT_MINUTES", 10)
	if err != nil {
		return nil, err
	}

	rps, err := floatEnv("RATE_LIMIT_RPS", 10)
	if err != nil {
		return nil, err
	}

	burst, err := intEnv("RATE_LIMIT_BURST", 20)
	if err != nil {
		return nil, err
	}

	if asyncWorkers < 1 || batchWorkers < 1 {
		return nil, fmt.Errorf("worker counts must be at least 1")
	}
	if syncSlots < 1 {
		return nil, fmt.Errorf("SYNC_SLOTS must be at least 1")
	}
	if queueCapacity < 1 {
		return nil, fmt.Errorf("QUEUE_CAPACITY must be at least 1")
	}

	return &Config{
		Port:            port,
		DataDir:         getEnv("DATA_DIR", "/data"),
		MaxUploadSizeMB: maxUploadSizeMB,
		AsyncWorkers:    asyncWorkers,
		BatchWorkers:    batchWorkers,
		QueueCapacity:   queueCapacity,
		SyncSlots:       syncSlots,
		SyncWait:        time.Duration(syncWaitMS) * time.Millisecond,
		JobTTL:          time.Duration(ttlHours) * time.Hour,
		CleanupInterval: time.Duration(cleanupMinutes) * time.Minute,
		ConvertTimeout:  time.Duration(convertMinutes) * time.Minute,
		RateLimitRPS:    rps,
		RateLimitBurst:  burst,
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func intEnv(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func floatEnv(key string, defaultValue float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
