package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"candor/internal/aggregate"
	"candor/internal/features"
	"candor/internal/scoring"
	"candor/internal/service"
	"candor/internal/session"
	"candor/pkg/database/client"
	logging "candor/pkg/logger/pkg"
	rabbit "candor/pkg/rabbit/pkg"
	redis "candor/pkg/redis/pkg"
)

const DefaultPath = "./config/config.yaml"

type Server struct {
	Host            string
	HTTPPort        int
	GRPCPort        int
	ShutdownTimeout time.Duration
}

func (s Server) HTTPAddr() string { return fmt.Sprintf("%s:%d", s.Host, s.HTTPPort) }
func (s Server) GRPCAddr() string { return fmt.Sprintf("%s:%d", s.Host, s.GRPCPort) }

type DB struct {
	Enabled bool
	client.Database
}

type Redis struct {
	Enabled     bool
	SnapshotTTL time.Duration
	redis.Config
}

type RabbitMQ struct {
	rabbit.Config
	Publisher features.PublisherConfig
}

type Scorer struct {
	service.ScorerConfig
	Timeout time.Duration
}

type Tracing struct {
	Enabled bool
	Service string
	Env     string
}

type Config struct {
	Server       Server
	DB           DB
	Redis        Redis
	RabbitMQ     RabbitMQ
	Scorer       Scorer
	Transcriber  service.TranscriberConfig
	Interview    features.Config
	Weights      scoring.Weights
	Policy       aggregate.Policy
	QuestionBank string
	Logger       logging.Config
	Tracing      Tracing
}

// environment overrides for connection settings and secrets
var envBindings = map[string]string{
	"db.user":                "DB_USER",
	"db.password":            "DB_PASSWORD",
	"db.host":                "DB_HOST",
	"db.port":                "DB_PORT",
	"db.name":                "DB_NAME",
	"redis.password":         "REDIS_PASSWORD",
	"rabbitmq.password":      "RABBITMQ_PASSWORD",
	"scorer.openai.key":      "OPENAI_API_KEY",
	"scorer.vertex.project":  "GOOGLE_CLOUD_PROJECT",
	"scorer.vertex.location": "GOOGLE_CLOUD_LOCATION",
	"transcriber.key":        "TRANSCRIBER_API_KEY",
}

func setDefaults(v *viper.Viper) {
	sc := session.DefaultConfig()
	w := scoring.DefaultWeights()
	p := aggregate.DefaultPolicy()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.grpc_port", 9090)
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("db.enabled", true)
	v.SetDefault("db.dialect", client.DialectSQLite)
	v.SetDefault("db.path", "./candor.db")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 3306)
	v.SetDefault("db.name", "candor")
	v.SetDefault("db.max_open_conns", 10)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.conn_max_lifetime", "30m")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.namespace", "candor")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.client_name", "candor")
	v.SetDefault("redis.snapshot_ttl", "2h")

	v.SetDefault("rabbitmq.port", 5672)
	v.SetDefault("rabbitmq.exchange", "candor.events")
	v.SetDefault("rabbitmq.queue", "candor.verdicts")
	v.SetDefault("rabbitmq.expire_time", "24h")
	v.SetDefault("rabbitmq.publisher.workers", 2)
	v.SetDefault("rabbitmq.publisher.queue_size", 64)
	v.SetDefault("rabbitmq.publisher.max_wait", "30s")
	v.SetDefault("rabbitmq.publisher.timeout", "5s")

	v.SetDefault("scorer.provider", service.ProviderNone)
	v.SetDefault("scorer.timeout", "15s")
	v.SetDefault("scorer.openai.temperature", 0.2)
	v.SetDefault("scorer.openai.max_tokens", 200)
	v.SetDefault("scorer.openai.timeout", "20s")
	v.SetDefault("scorer.vertex.temperature", 0.2)
	v.SetDefault("scorer.vertex.max_tokens", 200)

	v.SetDefault("transcriber.timeout", "60s")
	v.SetDefault("interview.max_skills", sc.MaxSkills)
	v.SetDefault("interview.per_skill_count", sc.PerSkillCount)
	v.SetDefault("interview.secondary_enabled", sc.SecondaryEnabled)
	v.SetDefault("interview.secondary_prompts", sc.SecondaryPrompts)
	v.SetDefault("interview.intro_skip_penalty", sc.IntroSkipPenalty)
	v.SetDefault("interview.auto_skip", false)
	v.SetDefault("interview.timer_grace", "2s")
	v.SetDefault("interview.transcribe_timeout", "60s")

	v.SetDefault("scoring.min_answer_chars", w.MinAnswerChars)
	v.SetDefault("scoring.external_weight", w.ExternalWeight)
	v.SetDefault("scoring.fresher_cap", w.FresherCap)
	v.SetDefault("aggregate.technical_weight", p.TechnicalWeight)
	v.SetDefault("aggregate.project_weight", p.ProjectWeight)
	v.SetDefault("aggregate.skip_penalty", p.SkipPenalty)
	v.SetDefault("aggregate.secondary_missing", p.SecondaryMissing)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.pretty", false)
	v.SetDefault("tracing.service", "candor")
	v.SetDefault("tracing.env", "local")
}

// ReadConfig loads the file named by CONFIG_PATH, or DefaultPath
func ReadConfig() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = DefaultPath
	}
	return Load(path)
}

// Load reads path on top of the defaults. A missing file leaves the defaults and environment in effect.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{
		Server: Server{
			Host:            v.GetString("server.host"),
			HTTPPort:        v.GetInt("server.http_port"),
			GRPCPort:        v.GetInt("server.grpc_port"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		DB: DB{
			Enabled: v.GetBool("db.enabled"),
			Database: client.Database{
				Dialect:         v.GetString("db.dialect"),
				Username:        v.GetString("db.user"),
				Password:        v.GetString("db.password"),
				Host:            v.GetString("db.host"),
				Port:            v.GetUint32("db.port"),
				Name:            v.GetString("db.name"),
				Path:            v.GetString("db.path"),
				TracingEnabled:  v.GetBool("tracing.enabled"),
				MaxOpenConns:    v.GetUint32("db.max_open_conns"),
				MaxIdleConns:    v.GetUint32("db.max_idle_conns"),
				ConnMaxIdleTime: v.GetDuration("db.conn_max_idle_time"),
				ConnMaxLifeTime: v.GetDuration("db.conn_max_lifetime"),
			},
		},
		Redis: Redis{
			Enabled:     v.GetBool("redis.enabled"),
			SnapshotTTL: v.GetDuration("redis.snapshot_ttl"),
			Config: redis.Config{
				Address:      v.GetString("redis.address"),
				Username:     v.GetString("redis.username"),
				Password:     v.GetString("redis.password"),
				DB:           v.GetInt("redis.db"),
				Namespace:    v.GetString("redis.namespace"),
				Debug:        v.GetBool("redis.debug"),
				PoolSize:     v.GetInt("redis.pool_size"),
				MaxRetries:   v.GetInt("redis.max_retries"),
				DialTimeout:  v.GetDuration("redis.dial_timeout"),
				ReadTimeout:  v.GetDuration("redis.read_timeout"),
				WriteTimeout: v.GetDuration("redis.write_timeout"),
				ClientName:   v.GetString("redis.client_name"),
				Tracing:      v.GetBool("tracing.enabled"),
			},
		},
		RabbitMQ: RabbitMQ{
			Config: rabbit.Config{
				Address:    v.GetString("rabbitmq.address"),
				Port:       v.GetInt("rabbitmq.port"),
				Username:   v.GetString("rabbitmq.user"),
				Password:   v.GetString("rabbitmq.password"),
				Exchange:   v.GetString("rabbitmq.exchange"),
				Queue:      v.GetString("rabbitmq.queue"),
				ExpireTime: v.GetDuration("rabbitmq.expire_time"),
			},
			Publisher: features.PublisherConfig{
				Workers:         v.GetInt("rabbitmq.publisher.workers"),
				QueueSize:       v.GetInt("rabbitmq.publisher.queue_size"),
				MaxTaskWaitTime: v.GetDuration("rabbitmq.publisher.max_wait"),
				PublishTimeout:  v.GetDuration("rabbitmq.publisher.timeout"),
			},
		},
		Scorer: Scorer{
			ScorerConfig: service.ScorerConfig{
				Provider: v.GetString("scorer.provider"),
				OpenAI: service.OpenAIConfig{
					URL:         v.GetString("scorer.openai.url"),
					APIKey:      v.GetString("scorer.openai.key"),
					Model:       v.GetString("scorer.openai.model"),
					Temperature: v.GetFloat64("scorer.openai.temperature"),
					MaxTokens:   v.GetInt("scorer.openai.max_tokens"),
					Timeout:     v.GetDuration("scorer.openai.timeout"),
				},
				Vertex: service.VertexConfig{
					Project:     v.GetString("scorer.vertex.project"),
					Location:    v.GetString("scorer.vertex.location"),
					Model:       v.GetString("scorer.vertex.model"),
					Temperature: float32(v.GetFloat64("scorer.vertex.temperature")),
					MaxTokens:   v.GetInt32("scorer.vertex.max_tokens"),
				},
			},
			Timeout: v.GetDuration("scorer.timeout"),
		},
		Transcriber: service.TranscriberConfig{
			URL:      v.GetString("transcriber.url"),
			APIKey:   v.GetString("transcriber.key"),
			Model:    v.GetString("transcriber.model"),
			Language: v.GetString("transcriber.language"),
			Timeout:  v.GetDuration("transcriber.timeout"),
		},
		Interview: features.Config{
			Session: session.Config{
				MaxSkills:        v.GetInt("interview.max_skills"),
				PerSkillCount:    v.GetInt("interview.per_skill_count"),
				SecondaryEnabled: v.GetBool("interview.secondary_enabled"),
				SecondaryPrompts: v.GetStringSlice("interview.secondary_prompts"),
				IntroSkipPenalty: v.GetInt("interview.intro_skip_penalty"),
			},
			SnapshotTTL:       v.GetDuration("redis.snapshot_ttl"),
			AutoSkip:          v.GetBool("interview.auto_skip"),
			TimerGrace:        v.GetDuration("interview.timer_grace"),
			TranscribeTimeout: v.GetDuration("interview.transcribe_timeout"),
		},
		QuestionBank: v.GetString("questionbank.path"),
		Logger: logging.Config{
			Level:  v.GetString("logger.level"),
			Pretty: v.GetBool("logger.pretty"),
		},
		Tracing: Tracing{
			Enabled: v.GetBool("tracing.enabled"),
			Service: v.GetString("tracing.service"),
			Env:     v.GetString("tracing.env"),
		},
	}

	cfg.Weights = scoring.DefaultWeights()
	cfg.Weights.MinAnswerChars = v.GetInt("scoring.min_answer_chars")
	cfg.Weights.ExternalWeight = v.GetFloat64("scoring.external_weight")
	cfg.Weights.FresherCap = v.GetInt("scoring.fresher_cap")

	cfg.Policy = aggregate.DefaultPolicy()
	cfg.Policy.TechnicalWeight = v.GetFloat64("aggregate.technical_weight")
	cfg.Policy.ProjectWeight = v.GetFloat64("aggregate.project_weight")
	cfg.Policy.SkipPenalty = v.GetInt("aggregate.skip_penalty")
	cfg.Policy.SecondaryMissing = v.GetInt("aggregate.secondary_missing")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.DB.Dialect {
	case client.DialectMySQL, client.DialectSQLite:
	default:
		return fmt.Errorf("unsupported db dialect %q", c.DB.Dialect)
	}
	if c.Interview.Session.MaxSkills < 1 || c.Interview.Session.PerSkillCount < 1 {
		return errors.New("interview max_skills and per_skill_count must be positive")
	}
	if err := c.Weights.Validate(); err != nil {
		return fmt.Errorf("scoring: %w", err)
	}
	if err := c.Policy.Validate(); err != nil {
		return fmt.Errorf("aggregate: %w", err)
	}
	return nil
}
