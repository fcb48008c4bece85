package hashtable

import "fmt"

// Config is the configuration recognized by New.
type Config struct {
	// InitialBuckets is rounded up to the next power of two, minimum 16.
	InitialBuckets uint64
	// MaxBuckets is the hard ceiling beyond which Set reports Full.
	MaxBuckets uint64
	// UpsizeBlockSize hints the migration block granularity; 0 picks
	// an implementation default.
	UpsizeBlockSize uint32

	// Logger receives diagnostic events (upsize start and completion,
	// Full). A nil Logger disables logging.
	Logger Logger
}

func (c Config) validate() error {
	if c.InitialBuckets == 0 {
		return fmt.Errorf("hashtable: InitialBuckets must be > 0, got 0")
	}
	if c.MaxBuckets != 0 && c.MaxBuckets < roundUpPow2(c.InitialBuckets) {
		return fmt.Errorf("hashtable: MaxBuckets (%d) must be >= rounded InitialBuckets (%d)",
			c.MaxBuckets, roundUpPow2(c.InitialBuckets))
	}
	return nil
}

const defaultUpsizeBlockSize = 4096
