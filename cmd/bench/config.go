package main

import "gopkg.in/yaml.v2"

// Config is the representation of bench's YAML config file.
type Config struct {
	// ListenAddress is where the debug/metrics HTTP server listens.
	ListenAddress string `yaml:"listen-address"`

	// InitialBuckets, MaxBuckets, UpsizeBlockSize feed hashtable.Config.
	InitialBuckets  uint64 `yaml:"initial-buckets"`
	MaxBuckets      uint64 `yaml:"max-buckets"`
	UpsizeBlockSize uint32 `yaml:"upsize-block-size,omitempty"`

	// Workers is the number of concurrent goroutines generating load.
	Workers int `yaml:"workers"`

	// MaxConcurrentOps bounds in-flight operations across all workers
	// via a semaphore.Weighted, independent of Workers.
	MaxConcurrentOps int64 `yaml:"max-concurrent-ops"`

	// DurationSeconds is how long the load generator runs before
	// reporting final counters and exiting.
	DurationSeconds int `yaml:"duration-seconds"`

	// GlogVerbosity seeds glog.Glog's InfoLevel.
	GlogVerbosity int `yaml:"glog-verbosity,omitempty"`
}

func parseConfig(raw []byte) (*Config, error) {
	config := &Config{
		ListenAddress:    ":8080",
		InitialBuckets:   1024,
		MaxBuckets:       1 << 24,
		Workers:          4,
		MaxConcurrentOps: 64,
		DurationSeconds:  10,
	}
	if err := yaml.Unmarshal(raw, config); err != nil {
		return nil, err
	}
	return config, nil
}
