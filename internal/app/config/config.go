package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/veridrive/sigproof/internal/adapters/canbus"
	"github.com/veridrive/sigproof/internal/adapters/gpio"
	"github.com/veridrive/sigproof/internal/adapters/netsig"
	"github.com/veridrive/sigproof/internal/adapters/opcsig"
	"github.com/veridrive/sigproof/internal/adapters/serialbus"
	"github.com/veridrive/sigproof/internal/criteria"
	"github.com/veridrive/sigproof/internal/domain"
	"github.com/veridrive/sigproof/internal/ports"
)

type Config struct {
	Policy     ports.Policy            `yaml:"policy"`
	Criteria   domain.PassFailCriteria `yaml:"criteria"`
	Sources    SourcesConfig           `yaml:"sources"`
	Detections DetectionsConfig        `yaml:"detections"`
	Postgres   PostgresConfig          `yaml:"postgres"`
	Metrics    MetricsConfig           `yaml:"metrics"`
	Journal    JournalConfig           `yaml:"journal"`
	Progress   ProgressConfig          `yaml:"progress"`
}

// SourcesConfig lists hardware signal sources per protocol. Every entry
// becomes one adapter; source_id values must be unique across protocols.
type SourcesConfig struct {
	GPIO    []gpio.Config      `yaml:"gpio"`
	Network []netsig.Config    `yaml:"network"`
	Serial  []serialbus.Config `yaml:"serial"`
	CAN     []canbus.Config    `yaml:"can"`
	OPCUA   []opcsig.Config    `yaml:"opcua"`
}

func (s *SourcesConfig) count() int {
	return len(s.GPIO) + len(s.Network) + len(s.Serial) + len(s.CAN) + len(s.OPCUA)
}

// DetectionsConfig points at the model output stream. File is an NDJSON
// detection log replayed in timestamp order.
type DetectionsConfig struct {
	File        string `yaml:"file"`
	GroundTruth string `yaml:"ground_truth"`
}

type PostgresConfig struct {
	ConnString    string `yaml:"conn_string"`
	ResultsTable  string `yaml:"results_table"`
	VerdictsTable string `yaml:"verdicts_table"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type JournalConfig struct {
	Dir string `yaml:"dir"`
}

// ProgressConfig configures the websocket progress feed. An empty Addr
// disables it.
type ProgressConfig struct {
	Addr string `yaml:"addr"`
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Policy.ToleranceWindowMs == 0 {
		c.Policy.ToleranceWindowMs = 5
	}
	if c.Policy.BufferCapacity == 0 {
		c.Policy.BufferCapacity = 10_000
	}
	if c.Policy.SourceQueueLen == 0 {
		c.Policy.SourceQueueLen = 1024
	}
	if c.Policy.MaxBatchSize == 0 {
		c.Policy.MaxBatchSize = 500
	}
	if c.Policy.IdleSleep == 0 {
		c.Policy.IdleSleep = 5 * time.Millisecond
	}
	if c.Policy.GracePeriod == 0 {
		c.Policy.GracePeriod = 2 * time.Second
	}
	if c.Policy.ProgressInterval == 0 {
		c.Policy.ProgressInterval = time.Second
	}
	if c.Policy.OnQueueFull == "" {
		c.Policy.OnQueueFull = "block"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
	if c.Postgres.ResultsTable == "" {
		c.Postgres.ResultsTable = "latency_results"
	}
	if c.Postgres.VerdictsTable == "" {
		c.Postgres.VerdictsTable = "test_verdicts"
	}
	if c.Journal.Dir == "" {
		c.Journal.Dir = "./data/journal"
	}

	for i := range c.Sources.GPIO {
		c.Sources.GPIO[i].ApplyDefaults()
	}
	for i := range c.Sources.Network {
		c.Sources.Network[i].ApplyDefaults()
	}
	for i := range c.Sources.Serial {
		c.Sources.Serial[i].ApplyDefaults()
	}
	for i := range c.Sources.CAN {
		c.Sources.CAN[i].ApplyDefaults()
	}
	for i := range c.Sources.OPCUA {
		c.Sources.OPCUA[i].ApplyDefaults()
	}
}

func (c *Config) validate() error {
	if c.Policy.ToleranceWindowMs <= 0 {
		return fmt.Errorf("policy.tolerance_window_ms must be > 0, got %g", c.Policy.ToleranceWindowMs)
	}
	if c.Policy.OnQueueFull != "block" && c.Policy.OnQueueFull != "drop" {
		return fmt.Errorf("policy.on_queue_full must be block or drop, got %q", c.Policy.OnQueueFull)
	}
	if err := criteria.Validate(c.Criteria); err != nil {
		return fmt.Errorf("criteria: %w", err)
	}

	if c.Sources.count() == 0 {
		return fmt.Errorf("at least one signal source is required")
	}
	seen := make(map[string]bool, c.Sources.count())
	check := func(kind, id string, err error) error {
		if err != nil {
			return fmt.Errorf("sources.%s: %w", kind, err)
		}
		if seen[id] {
			return fmt.Errorf("sources.%s: duplicate source_id %q", kind, id)
		}
		seen[id] = true
		return nil
	}
	for i := range c.Sources.GPIO {
		if err := check("gpio", c.Sources.GPIO[i].SourceID, c.Sources.GPIO[i].Validate()); err != nil {
			return err
		}
	}
	for i := range c.Sources.Network {
		if err := check("network", c.Sources.Network[i].SourceID, c.Sources.Network[i].Validate()); err != nil {
			return err
		}
	}
	for i := range c.Sources.Serial {
		if err := check("serial", c.Sources.Serial[i].SourceID, c.Sources.Serial[i].Validate()); err != nil {
			return err
		}
	}
	for i := range c.Sources.CAN {
		if err := check("can", c.Sources.CAN[i].SourceID, c.Sources.CAN[i].Validate()); err != nil {
			return err
		}
	}
	for i := range c.Sources.OPCUA {
		if err := check("opcua", c.Sources.OPCUA[i].SourceID, c.Sources.OPCUA[i].Validate()); err != nil {
			return err
		}
	}

	if c.Detections.File == "" {
		return fmt.Errorf("detections.file is required")
	}
	if c.Postgres.ConnString == "" {
		return fmt.Errorf("postgres.conn_string is required")
	}
	if c.Journal.Dir == "" {
		return fmt.Errorf("journal.dir is required")
	}
	return nil
}
