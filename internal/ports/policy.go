package ports

import "time"

// Policy bundles the session-level tuning knobs shared by the pipeline.
type Policy struct {
	// ToleranceWindowMs is W, the half-width of the correlation window.
	ToleranceWindowMs float64 `yaml:"tolerance_window_ms"`
	// BufferCapacity bounds each source's ring buffer in the engine.
	BufferCapacity int `yaml:"buffer_capacity"`
	// ExclusiveMatching removes a signal from the buffer once matched.
	ExclusiveMatching bool `yaml:"exclusive_matching"`

	// SourceQueueLen bounds each per-source event channel. Full channels
	// stall the producing adapter (deliberate backpressure).
	SourceQueueLen int           `yaml:"source_queue_len"`
	MaxBatchSize   int           `yaml:"max_batch_size"`
	IdleSleep      time.Duration `yaml:"idle_sleep"`

	// GracePeriod is how long STOPPING waits for in-flight correlations.
	GracePeriod time.Duration `yaml:"grace_period"`
	// ProgressInterval is the cadence of progress snapshots.
	ProgressInterval time.Duration `yaml:"progress_interval"`

	OnQueueFull string `yaml:"on_queue_full"` // "block", "drop"
}
