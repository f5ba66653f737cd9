package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Betflow   BetflowConfig   `yaml:"betflow"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Channels  ChannelsConfig  `yaml:"channels"`
	Stream    StreamConfig    `yaml:"stream"`
	Poll      PollConfig      `yaml:"poll"`
	Positions PositionsConfig `yaml:"positions"`
	Coalescer CoalescerConfig `yaml:"coalescer"`
	Bet       BetConfig       `yaml:"bet"`
	Publisher PublisherConfig `yaml:"publisher"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type BetflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type MetricsConfig struct {
	ChannelSize    bool   `yaml:"channel_size"`
	PrometheusAddr string `yaml:"prometheus_addr"`
}

type ChannelsConfig struct {
	FrameBuffer int `yaml:"frame_buffer"`
	BatchBuffer int `yaml:"batch_buffer"`
}

// StreamEvents holds the wire event-name aliases routed to each frame kind.
// Producers have renamed events across deployments; every historical alias
// stays subscribed.
type StreamEvents struct {
	LiveList []string `yaml:"live_list"`
	Realtime []string `yaml:"realtime"`
	Odds     []string `yaml:"odds"`
}

type StreamConfig struct {
	Enabled        bool          `yaml:"enabled"`
	URL            string        `yaml:"url"`
	Events         StreamEvents  `yaml:"events"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	PingInterval   time.Duration `yaml:"ping_interval"`
}

type PollConfig struct {
	Enabled           bool          `yaml:"enabled"`
	URL               string        `yaml:"url"`
	Interval          time.Duration `yaml:"interval"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond int           `yaml:"requests_per_second"`
	BurstSize         int           `yaml:"burst_size"`
}

type PositionsConfig struct {
	Enabled  bool          `yaml:"enabled"`
	URL      string        `yaml:"url"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

type CoalescerConfig struct {
	FlushInterval time.Duration `yaml:"flush_interval"`
}

type BetConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type PublisherConfig struct {
	Enabled   bool   `yaml:"enabled"`
	RedisAddr string `yaml:"redis_addr"`
	RedisPass string `yaml:"redis_pass"`
	RedisDB   int    `yaml:"redis_db"`
	Stream    string `yaml:"stream"`
}

type DashboardConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Address         string        `yaml:"address"`
	LogHistory      int           `yaml:"log_history"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool          `yaml:"enabled"`
	Bucket          string        `yaml:"bucket"`
	Region          string        `yaml:"region"`
	Prefix          string        `yaml:"prefix"`
	AccessKeyID     string        `yaml:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key"`
	FlushInterval   time.Duration `yaml:"flush_interval"`
	Compression     string        `yaml:"compression"`
}

type LoggingConfig struct {
	Level         string                 `yaml:"level"`
	Format        string                 `yaml:"format"`
	Output        string                 `yaml:"output"`
	MaxAge        int                    `yaml:"max_age"`
	Fields        map[string]interface{} `yaml:"fields"`
	DashboardName string                 `yaml:"dashboard_name"`
}

func LoadConfig(path string) (*Config, error) {
	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Metrics: MetricsConfig{
			ChannelSize: true,
		},
		Stream: StreamConfig{
			ConnectTimeout: 10 * time.Second,
			ReconnectDelay: 5 * time.Second,
			PingInterval:   20 * time.Second,
		},
		Coalescer: CoalescerConfig{
			FlushInterval: 250 * time.Millisecond,
		},
		Storage: StorageConfig{
			S3: S3Config{
				FlushInterval: time.Minute,
				Compression:   "snappy",
			},
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override S3 settings from environment variables if available
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}

	if v := os.Getenv("REDIS_ADDR"); v != "" {
		config.Publisher.RedisAddr = strings.TrimSpace(v)
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		config.Publisher.RedisPass = strings.TrimSpace(v)
	}

	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Betflow.Name == "" {
		return fmt.Errorf("betflow.name is required")
	}

	if cfg.Betflow.Version == "" {
		return fmt.Errorf("betflow.version is required")
	}

	if cfg.Channels.FrameBuffer <= 0 {
		return fmt.Errorf("channels.frame_buffer must be greater than 0")
	}
	if cfg.Channels.BatchBuffer <= 0 {
		return fmt.Errorf("channels.batch_buffer must be greater than 0")
	}

	if cfg.Stream.Enabled {
		if cfg.Stream.URL == "" {
			return fmt.Errorf("stream.url is required when the stream is enabled")
		}
		if cfg.Stream.ReconnectDelay <= 0 {
			return fmt.Errorf("stream.reconnect_delay must be greater than 0")
		}
		if cfg.Stream.ConnectTimeout <= 0 {
			return fmt.Errorf("stream.connect_timeout must be greater than 0")
		}
	}

	if cfg.Poll.Enabled {
		if cfg.Poll.URL == "" {
			return fmt.Errorf("poll.url is required when polling is enabled")
		}
		if cfg.Poll.Interval <= 0 {
			return fmt.Errorf("poll.interval must be greater than 0")
		}
	}

	if cfg.Positions.Enabled {
		if cfg.Positions.URL == "" {
			return fmt.Errorf("positions.url is required when position polling is enabled")
		}
		if cfg.Positions.Interval <= 0 {
			return fmt.Errorf("positions.interval must be greater than 0")
		}
	}

	if cfg.Coalescer.FlushInterval <= 0 {
		return fmt.Errorf("coalescer.flush_interval must be greater than 0")
	}

	if cfg.Publisher.Enabled {
		if cfg.Publisher.RedisAddr == "" {
			return fmt.Errorf("publisher.redis_addr is required when the publisher is enabled")
		}
		if cfg.Publisher.Stream == "" {
			return fmt.Errorf("publisher.stream is required when the publisher is enabled")
		}
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		// Development can lean on the ambient AWS credential chain;
		// production and staging must be explicit.
		if IsProductionLike(AppEnvironment()) {
			if cfg.Storage.S3.AccessKeyID == "" || cfg.Storage.S3.SecretAccessKey == "" {
				return fmt.Errorf("storage.s3.access_key_id and storage.s3.secret_access_key are required when S3 is enabled")
			}
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
