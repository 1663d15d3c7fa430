package redis

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
	redistrace "gopkg.in/DataDog/dd-trace-go.v1/contrib/redis/go-redis.v9"
)

// Config describes one Redis endpoint. Timeouts of zero keep the client defaults.
type Config struct {
	Address      string
	Username     string
	Password     string
	DB           int
	Namespace    string
	Debug        bool
	PoolSize     int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	ClientName   string
	Tracing      bool
}

func New(config *Config, opts ...Option) (*redis.Client, error) {
	o := &Opt{
		Options: &redis.Options{
			Addr: config.Address,
		},
	}
	if len(config.Username) > 0 {
		o.Username = config.Username
	}
	if len(config.Password) > 0 {
		o.Password = config.Password
	}
	if config.DB > 0 {
		o.DB = config.DB
	}
	if config.MaxRetries != 0 {
		o.MaxRetries = config.MaxRetries
	}
	if config.DialTimeout != 0 {
		o.DialTimeout = config.DialTimeout
	}
	if config.ReadTimeout != 0 {
		o.ReadTimeout = config.ReadTimeout
	}
	if config.WriteTimeout != 0 {
		o.WriteTimeout = config.WriteTimeout
	}
	if config.PoolSize != 0 {
		o.PoolSize = config.PoolSize
	}
	if len(config.ClientName) > 0 {
		o.ClientName = config.ClientName
	}

	for _, o0 := range opts {
		o0.Apply(o)
	}

	client := redis.NewClient(o.Options)
	client.AddHook(&nsHook{config.Namespace})
	client.AddHook(&debugHook{config.Debug})

	if config.Tracing {
		redistrace.WrapClient(client, redistrace.WithServiceName("redis"))
	}
	return client, client.Ping(context.Background()).Err()
}

type Opt struct {
	*redis.Options
}

type Option interface {
	Apply(o *Opt)
}

type OptionFunc func(*Opt)

func (f OptionFunc) Apply(o *Opt) {
	f(o)
}

// Limiter interface used to implemented circuit breaker or rate limiter.
func Limiter(limiter redis.Limiter) Option {
	return OptionFunc(func(o *Opt) {
		o.Limiter = limiter
	})
}
