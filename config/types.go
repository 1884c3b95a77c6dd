// Package config loads BenchConfig, the host-side settings used to size and
// wire a Simulation before sim.Init runs.
package config

import "time"

// ClockMode selects how a Simulation's virtual clock advances relative to
// wall-clock time.
type ClockMode string

const (
	// ClockModeAsFast runs the simulation as fast as the executor can drain
	// the scheduler queue, with no wall-clock pacing.
	ClockModeAsFast ClockMode = "as-fast-as-possible"
	// ClockModeRealtime paces epoch advancement to wall-clock time via the
	// clock package's AutoSystem clock.
	ClockModeRealtime ClockMode = "realtime"
)

// SinkExportConfig configures one sinkexport.Engine instance.
type SinkExportConfig struct {
	Name    string        `yaml:"name" toml:"Name" env:"NAME"`
	Engine  string        `yaml:"engine" toml:"Engine" env:"ENGINE"` // "memory", "kafka", "redis", "nats", "kinesis"
	Topic   string        `yaml:"topic" toml:"Topic" env:"TOPIC"`
	Brokers []string      `yaml:"brokers" toml:"Brokers"`
	Timeout time.Duration `yaml:"timeout" toml:"Timeout"`
}

// BenchConfig is the full set of host-side settings for a simulation bench:
// executor sizing, mailbox capacity, clock pacing, and sink-export wiring.
type BenchConfig struct {
	WorkerCount        int                `yaml:"worker_count" toml:"WorkerCount" env:"BENCH_WORKER_COUNT"`
	MailboxCapacity    int                `yaml:"mailbox_capacity" toml:"MailboxCapacity" env:"BENCH_MAILBOX_CAPACITY"`
	ClockCheckInterval time.Duration      `yaml:"clock_check_interval" toml:"ClockCheckInterval" env:"BENCH_CLOCK_CHECK_INTERVAL"`
	ClockMode          ClockMode          `yaml:"clock_mode" toml:"ClockMode" env:"BENCH_CLOCK_MODE"`
	ObserverBufferSize int                `yaml:"observer_buffer_size" toml:"ObserverBufferSize" env:"BENCH_OBSERVER_BUFFER_SIZE"`
	SinkExports        []SinkExportConfig `yaml:"sink_exports" toml:"SinkExports"`
}

// Default returns a BenchConfig with conservative defaults suitable for a
// single-process simulation with no external sink exports.
func Default() *BenchConfig {
	return &BenchConfig{
		WorkerCount:        4,
		MailboxCapacity:    64,
		ClockCheckInterval: 10 * time.Millisecond,
		ClockMode:          ClockModeAsFast,
		ObserverBufferSize: 256,
	}
}
