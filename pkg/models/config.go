package models

import "time"

// Config carries the engine's tuning knobs. It arrives already validated;
// the engine itself reads no environment variables or files.
type Config struct {
	MaxConcurrentBatches      int
	MaxBatchSize              int
	BatchBytesThreshold       int64
	BatchOptimizationStrategy BatchOptimizationStrategy
	ToolAvailabilityTTL       time.Duration
	SubprocessTimeout         time.Duration
	FileOperationTimeout      time.Duration
	TraditionalFanout         int
	DefaultMode               TransferMode

	// External copy tool invocation.
	ToolPath        string
	ToolConcurrency int
	ToolRetryCount  int
	ToolPartSizeMB  int

	// Scratch space for the traditional path. Empty means os.TempDir.
	TempDir string
}

// MaxBatchSizeCeiling is the hard upper bound on files per batch.
const MaxBatchSizeCeiling = 500

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentBatches:      8,
		MaxBatchSize:              100,
		BatchBytesThreshold:       5 * 1024 * 1024 * 1024, // 5GB
		BatchOptimizationStrategy: Mixed,
		ToolAvailabilityTTL:       60 * time.Second,
		SubprocessTimeout:         15 * time.Minute,
		FileOperationTimeout:      5 * time.Minute,
		TraditionalFanout:         4,
		DefaultMode:               ModeAuto,
		ToolPath:                  "s5cmd",
		ToolConcurrency:           32,
		ToolRetryCount:            3,
		ToolPartSizeMB:            50,
	}
}

// Normalize clamps out-of-range values to the engine bounds.
func (c Config) Normalize() Config {
	if c.MaxConcurrentBatches <= 0 {
		c.MaxConcurrentBatches = 8
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = 100
	}
	if c.MaxBatchSize > MaxBatchSizeCeiling {
		c.MaxBatchSize = MaxBatchSizeCeiling
	}
	if c.BatchBytesThreshold <= 0 {
		c.BatchBytesThreshold = 5 * 1024 * 1024 * 1024
	}
	if c.BatchOptimizationStrategy == "" {
		c.BatchOptimizationStrategy = Mixed
	}
	if c.ToolAvailabilityTTL <= 0 {
		c.ToolAvailabilityTTL = 60 * time.Second
	}
	if c.SubprocessTimeout <= 0 {
		c.SubprocessTimeout = 15 * time.Minute
	}
	if c.FileOperationTimeout <= 0 {
		c.FileOperationTimeout = 5 * time.Minute
	}
	if c.TraditionalFanout <= 0 {
		c.TraditionalFanout = 4
	}
	if c.DefaultMode == "" {
		c.DefaultMode = ModeAuto
	}
	if c.ToolPath == "" {
		c.ToolPath = "s5cmd"
	}
	if c.ToolConcurrency <= 0 {
		c.ToolConcurrency = 32
	}
	if c.ToolRetryCount < 0 {
		c.ToolRetryCount = 3
	}
	if c.ToolPartSizeMB <= 0 {
		c.ToolPartSizeMB = 50
	}
	return c
}
