package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/adhocore/gronx"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Hive        HiveConfig        `yaml:"hive"`
	Topology    TopologyConfig    `yaml:"topology"`
	LoadBalance LoadBalanceConfig `yaml:"loadbalance"`
	Fault       FaultConfig       `yaml:"fault"`
	Memory      MemoryConfig      `yaml:"memory"`
	Executor    ExecutorConfig    `yaml:"executor"`
	NATS        NATSConfig        `yaml:"nats"`
	Web         WebConfig         `yaml:"web"`
}

type HiveConfig struct {
	Name      string `yaml:"name"`
	Topology  string `yaml:"topology"`
	MaxAgents int    `yaml:"max_agents"`
}

type TopologyConfig struct {
	AutoOptimize     bool          `yaml:"auto_optimize"`
	OptimizeInterval time.Duration `yaml:"optimize_interval"`
}

type LoadBalanceConfig struct {
	RebalanceInterval time.Duration `yaml:"rebalance_interval"`
	SpreadThreshold   float64       `yaml:"spread_threshold"`
}

type FaultConfig struct {
	BreakerThreshold int           `yaml:"breaker_threshold"`
	BreakerCooldown  time.Duration `yaml:"breaker_cooldown"`
	HealthInterval   time.Duration `yaml:"health_interval"`
	MaxRetries       int           `yaml:"max_retries"`
	RetryDelay       time.Duration `yaml:"retry_delay"`
	BackupRatio      float64       `yaml:"backup_ratio"`
}

type MemoryConfig struct {
	Path              string `yaml:"path"`
	RetentionSchedule string `yaml:"retention_schedule"`
	RetentionDays     int    `yaml:"retention_days"`
	KeepDecisions     int    `yaml:"keep_decisions"`
	MaxSizeMB         int64  `yaml:"max_size_mb"`
}

type ExecutorConfig struct {
	Mode    string        `yaml:"mode"`
	Timeout time.Duration `yaml:"timeout"`
}

type NATSConfig struct {
	Port    int    `yaml:"port"`
	DataDir string `yaml:"data_dir"`
}

type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Auth    string `yaml:"auth"`
}

func defaults() Config {
	return Config{
		Hive: HiveConfig{
			Name:      "hive",
			Topology:  "hierarchical",
			MaxAgents: 8,
		},
		Topology: TopologyConfig{
			AutoOptimize:     true,
			OptimizeInterval: 5 * time.Minute,
		},
		LoadBalance: LoadBalanceConfig{
			RebalanceInterval: 30 * time.Second,
			SpreadThreshold:   0.3,
		},
		Fault: FaultConfig{
			BreakerThreshold: 3,
			BreakerCooldown:  30 * time.Second,
			HealthInterval:   30 * time.Second,
			MaxRetries:       2,
			RetryDelay:       2 * time.Second,
			BackupRatio:      0.25,
		},
		Memory: MemoryConfig{
			Path:              "data/hived.db",
			RetentionSchedule: "@hourly",
			RetentionDays:     30,
			KeepDecisions:     1000,
			MaxSizeMB:         512,
		},
		Executor: ExecutorConfig{
			Mode:    "bus",
			Timeout: 5 * time.Minute,
		},
		NATS: NATSConfig{
			Port:    4222,
			DataDir: "data/nats",
		},
		Web: WebConfig{
			Enabled: true,
			Port:    8080,
		},
	}
}

func Load() (*Config, error) {
	cfg := defaults()

	path := os.Getenv("HIVED_CONFIG")
	if path == "" {
		path = "config/hived.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults + env
	} else {
		// Expand environment variables in YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("HIVED_NAME"); v != "" {
		cfg.Hive.Name = v
	}
	if v := os.Getenv("HIVED_TOPOLOGY"); v != "" {
		cfg.Hive.Topology = v
	}
	if v := os.Getenv("HIVED_MAX_AGENTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Hive.MaxAgents = n
		}
	}
	if v := os.Getenv("HIVED_MEMORY_PATH"); v != "" {
		cfg.Memory.Path = v
	}
	if v := os.Getenv("HIVED_EXECUTOR_MODE"); v != "" {
		cfg.Executor.Mode = v
	}
	if v := os.Getenv("HIVED_NATS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.NATS.Port = port
		}
	}
	if v := os.Getenv("HIVED_WEB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Web.Port = port
		}
	}
	if v := os.Getenv("HIVED_WEB_PASSWORD"); v != "" {
		cfg.Web.Auth = v
	}
}

// Validate rejects configurations the daemon cannot start with.
// Topology names are validated where the graph is built.
func (c *Config) Validate() error {
	if c.Hive.MaxAgents < 2 {
		return fmt.Errorf("config: max_agents must be at least 2, got %d", c.Hive.MaxAgents)
	}
	if c.Fault.BreakerThreshold < 1 {
		return fmt.Errorf("config: breaker_threshold must be at least 1, got %d", c.Fault.BreakerThreshold)
	}
	if c.Fault.BackupRatio < 0 || c.Fault.BackupRatio > 1 {
		return fmt.Errorf("config: backup_ratio must be within [0,1], got %f", c.Fault.BackupRatio)
	}
	if c.Memory.RetentionDays < 1 {
		return fmt.Errorf("config: retention_days must be at least 1, got %d", c.Memory.RetentionDays)
	}
	if c.Memory.RetentionSchedule != "" && !gronx.New().IsValid(c.Memory.RetentionSchedule) {
		return fmt.Errorf("config: invalid retention_schedule %q", c.Memory.RetentionSchedule)
	}
	if c.Executor.Mode != "bus" && c.Executor.Mode != "loopback" {
		return fmt.Errorf("config: executor mode must be bus or loopback, got %q", c.Executor.Mode)
	}
	if c.Web.Enabled && (c.Web.Port < 1 || c.Web.Port > 65535) {
		return fmt.Errorf("config: invalid web port %d", c.Web.Port)
	}
	return nil
}
