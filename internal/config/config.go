package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type StoreConfig struct {
	Backend        string `yaml:"backend"`
	Root           string `yaml:"root"`
	MinIOEndpoint  string `yaml:"minio_endpoint"`
	MinIOAccessKey string `yaml:"minio_access_key"`
	MinIOSecretKey string `yaml:"minio_secret_key"`
	MinIOBucket    string `yaml:"minio_bucket"`
	MinIOUseSSL    bool   `yaml:"minio_use_ssl"`
}

type QueueConfig struct {
	GenerationWorkers int `yaml:"generation_workers"`
	AnalysisWorkers   int `yaml:"analysis_workers"`
	Backlog           int `yaml:"backlog"`
	BaseDelayMillis   int `yaml:"base_delay_millis"`
	MaxAttempts       int `yaml:"max_attempts"`
	EmergencyAttempts int `yaml:"emergency_attempts"`
}

type BaselineSignal struct {
	Volume     *float64 `yaml:"volume"`
	Discussion *float64 `yaml:"discussion"`
	Growth     *float64 `yaml:"growth"`
	Breaking   bool     `yaml:"breaking"`
}

type TrendsConfig struct {
	TTLMinutes          int                       `yaml:"ttl_minutes"`
	FetchTimeoutSeconds int                       `yaml:"fetch_timeout_seconds"`
	VolumeCeiling       float64                   `yaml:"volume_ceiling"`
	DiscussionCeiling   float64                   `yaml:"discussion_ceiling"`
	GrowthCeiling       float64                   `yaml:"growth_ceiling"`
	Baseline            map[string]BaselineSignal `yaml:"baseline"`
}

type OrchestratorConfig struct {
	MinScore               float64 `yaml:"min_score"`
	SweepThreshold         float64 `yaml:"sweep_threshold"`
	GenerateTimeoutSeconds int     `yaml:"generate_timeout_seconds"`
	PromptTemplate         string  `yaml:"prompt_template"`
}

type TriggersConfig struct {
	ComprehensiveCycle string `yaml:"comprehensive_cycle"`
	PrioritySweep      string `yaml:"priority_sweep"`
	EmergencySweep     string `yaml:"emergency_sweep"`
}

type GeneratorConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

type PatternConfig struct {
	Technology string   `yaml:"technology"`
	Priority   int      `yaml:"priority"`
	Patterns   []string `yaml:"patterns"`
}

type Config struct {
	HTTPPort      string             `yaml:"http_port"`
	Technologies  []string           `yaml:"technologies"`
	RetentionDays int                `yaml:"retention_days"`
	Store         StoreConfig        `yaml:"store"`
	Queue         QueueConfig        `yaml:"queue"`
	Trends        TrendsConfig       `yaml:"trends"`
	Orchestrator  OrchestratorConfig `yaml:"orchestrator"`
	Triggers      TriggersConfig     `yaml:"triggers"`
	Generator     GeneratorConfig    `yaml:"generator"`
	Classifier    []PatternConfig    `yaml:"classifier"`
}

func Default() Config {
	return Config{
		HTTPPort:      "8085",
		Technologies:  []string{"python", "javascript", "java", "react", "git", "docker"},
		RetentionDays: 365,
		Store: StoreConfig{
			Backend:     "fs",
			Root:        "/var/lib/ai-rules",
			MinIOBucket: "ai-rules-artifacts",
		},
		Queue: QueueConfig{
			GenerationWorkers: 2,
			AnalysisWorkers:   1,
			Backlog:           256,
			BaseDelayMillis:   1000,
			MaxAttempts:       3,
			EmergencyAttempts: 5,
		},
		Trends: TrendsConfig{
			TTLMinutes:          60,
			FetchTimeoutSeconds: 10,
			VolumeCeiling:       10000,
			DiscussionCeiling:   5000,
			GrowthCeiling:       0.20,
		},
		Orchestrator: OrchestratorConfig{
			MinScore:               0.3,
			SweepThreshold:         0.7,
			GenerateTimeoutSeconds: 180,
			PromptTemplate:         "config/generation_prompts.md",
		},
		Triggers: TriggersConfig{
			ComprehensiveCycle: "0 3 1 */6 *",
			PrioritySweep:      "0 */6 * * *",
			EmergencySweep:     "*/15 * * * *",
		},
		Generator: GeneratorConfig{
			Command: "claude",
			Args:    []string{"--print"},
		},
	}
}

// Load builds the config from defaults, an optional YAML file, and
// RULES_* env overrides, in that order.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.HTTPPort = getenv("RULES_HTTP_PORT", cfg.HTTPPort)
	if v := os.Getenv("RULES_TECHNOLOGIES"); v != "" {
		parts := strings.Split(v, ",")
		techs := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				techs = append(techs, p)
			}
		}
		if len(techs) > 0 {
			cfg.Technologies = techs
		}
	}
	cfg.RetentionDays = getenvInt("RULES_RETENTION_DAYS", cfg.RetentionDays)

	cfg.Store.Backend = getenv("RULES_STORE_BACKEND", cfg.Store.Backend)
	cfg.Store.Root = getenv("RULES_ARTIFACT_ROOT", cfg.Store.Root)
	cfg.Store.MinIOEndpoint = getenv("RULES_MINIO_ENDPOINT", cfg.Store.MinIOEndpoint)
	cfg.Store.MinIOAccessKey = getenv("RULES_MINIO_ACCESS_KEY", cfg.Store.MinIOAccessKey)
	cfg.Store.MinIOSecretKey = getenv("RULES_MINIO_SECRET_KEY", cfg.Store.MinIOSecretKey)
	cfg.Store.MinIOBucket = getenv("RULES_MINIO_BUCKET", cfg.Store.MinIOBucket)
	cfg.Store.MinIOUseSSL = getenvBool("RULES_MINIO_USE_SSL", cfg.Store.MinIOUseSSL)

	cfg.Queue.GenerationWorkers = getenvInt("RULES_GENERATION_WORKERS", cfg.Queue.GenerationWorkers)
	cfg.Queue.AnalysisWorkers = getenvInt("RULES_ANALYSIS_WORKERS", cfg.Queue.AnalysisWorkers)
	cfg.Queue.MaxAttempts = getenvInt("RULES_MAX_ATTEMPTS", cfg.Queue.MaxAttempts)
	cfg.Queue.EmergencyAttempts = getenvInt("RULES_EMERGENCY_ATTEMPTS", cfg.Queue.EmergencyAttempts)

	cfg.Trends.TTLMinutes = getenvInt("RULES_TREND_TTL_MINUTES", cfg.Trends.TTLMinutes)
	cfg.Orchestrator.MinScore = getenvFloat("RULES_MIN_SCORE", cfg.Orchestrator.MinScore)
	cfg.Orchestrator.SweepThreshold = getenvFloat("RULES_SWEEP_THRESHOLD", cfg.Orchestrator.SweepThreshold)
	cfg.Orchestrator.GenerateTimeoutSeconds = getenvInt("RULES_GENERATE_TIMEOUT_SECONDS", cfg.Orchestrator.GenerateTimeoutSeconds)

	cfg.Generator.Command = getenv("RULES_GENERATOR_COMMAND", cfg.Generator.Command)
}

func (c Config) BaseDelay() time.Duration {
	return time.Duration(c.Queue.BaseDelayMillis) * time.Millisecond
}

func (c Config) TrendTTL() time.Duration {
	return time.Duration(c.Trends.TTLMinutes) * time.Minute
}

func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Trends.FetchTimeoutSeconds) * time.Second
}

func (c Config) GenerateTimeout() time.Duration {
	return time.Duration(c.Orchestrator.GenerateTimeoutSeconds) * time.Second
}

func (c Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

func getenv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	default:
		return fallback
	}
}
