package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	OpsMemory OpsMemoryConfig `yaml:"opsmemory"`
}

// OpsMemoryConfig is the project configuration.
type OpsMemoryConfig struct {
	Store    StoreConfig    `yaml:"store"`
	Input    InputConfig    `yaml:"input"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Output   OutputConfig   `yaml:"output"`
	Patterns PatternsConfig `yaml:"patterns"`
	Predict  PredictConfig  `yaml:"predict"`
	Graph    GraphConfig    `yaml:"graph"`
	Voice    VoiceConfig    `yaml:"voice"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Backend       string       `yaml:"backend"` // redis|badger
	RetentionDays int          `yaml:"retention_days"`
	Redis         RedisConfig  `yaml:"redis"`
	Badger        BadgerConfig `yaml:"badger"`
}

// BadgerConfig controls the embedded backend.
type BadgerConfig struct {
	Dir      string `yaml:"dir"`
	InMemory bool   `yaml:"in_memory"`
}

// InputConfig controls the event source.
type InputConfig struct {
	Mode  string      `yaml:"mode"` // redis|nats|file
	Redis RedisConfig `yaml:"redis"`
	NATS  NATSConfig  `yaml:"nats"`
	File  string      `yaml:"file"`
}

// NATSConfig controls the NATS event subscription.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
	Queue   string `yaml:"queue"`
}

// PipelineConfig controls pipeline behavior.
type PipelineConfig struct {
	Workers         int           `yaml:"workers"`
	QueueSize       int           `yaml:"queue_size"`
	AnalyzeInterval time.Duration `yaml:"analyze_interval"`
}

// RedisConfig controls a Redis connection. Key is the list key for input
// and the key prefix for the store.
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	Key          string        `yaml:"key"`
	BlockTimeout time.Duration `yaml:"block_timeout"`
}

// OutputConfig controls where pattern matches go.
type OutputConfig struct {
	Mode       string                 `yaml:"mode"` // file|http|clickhouse
	File       FileOutputConfig       `yaml:"file"`
	HTTP       HTTPOutputConfig       `yaml:"http"`
	ClickHouse ClickHouseOutputConfig `yaml:"clickhouse"`
}

// FileOutputConfig config for local JSON output.
type FileOutputConfig struct {
	Path string `yaml:"path"`
}

// HTTPOutputConfig config for remote output.
type HTTPOutputConfig struct {
	URL     string            `yaml:"url"`
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
}

// ClickHouseOutputConfig config for ClickHouse HTTP inserts.
type ClickHouseOutputConfig struct {
	URL      string            `yaml:"url"`
	Database string            `yaml:"database"`
	Table    string            `yaml:"table"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	Timeout  time.Duration     `yaml:"timeout"`
	Headers  map[string]string `yaml:"headers"`
}

// PatternsConfig controls the pattern recognition engine. Zero values fall
// back to engine defaults.
type PatternsConfig struct {
	WindowHours        int           `yaml:"window_hours"`
	MinConfidence      float64       `yaml:"min_confidence"`
	MinEventCount      int           `yaml:"min_event_count"`
	MaxTimeWindow      time.Duration `yaml:"max_time_window"`
	EscalationRatio    float64       `yaml:"escalation_ratio"`
	AnomalyMultiplier  float64       `yaml:"anomaly_multiplier"`
	DriftWindow        time.Duration `yaml:"drift_window"`
	SignaturesPath     string        `yaml:"signatures_path"`
	FeedbackCacheSize  int           `yaml:"feedback_cache_size"`
	PolicyKeywords     []string      `yaml:"policy_keywords"`
	PolicyMinMatches   int           `yaml:"policy_min_matches"`
	CampaignMinMatches int           `yaml:"campaign_min_matches"`
}

// PredictConfig controls the predictive analytics engine.
type PredictConfig struct {
	MinConfidence     float64 `yaml:"min_confidence"`
	MinHistoricalData int     `yaml:"min_historical_data"`
	HorizonDays       int     `yaml:"horizon_days"`
	LookbackDays      int     `yaml:"lookback_days"`
	RecordRisk        bool    `yaml:"record_risk"`
}

// GraphConfig controls the bootstrap topology.
type GraphConfig struct {
	Units   []string `yaml:"units"`
	Sites   []string `yaml:"sites"`
	Devices []string `yaml:"devices"`
}

// VoiceConfig controls command learning.
type VoiceConfig struct {
	MinPatternConfidence float64 `yaml:"min_pattern_confidence"`
	MinUsageCount        int     `yaml:"min_usage_count"`
	LearningRate         float64 `yaml:"learning_rate"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// LoggingConfig controls logging output.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
