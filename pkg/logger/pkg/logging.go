package logging

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc/metadata"
)

var (
	_logger           = NewTmpLogger()
	_xRequestIDHeader = "x_request_id"
)

type requestIDKey struct{}

// Config selects the encoder and level of the process logger
type Config struct {
	Level  string
	Pretty bool
}

func NewLogger(cfg Config) (*zap.Logger, error) {
	var c zap.Config
	var opts []zap.Option
	if cfg.Pretty {
		c = zap.NewDevelopmentConfig()
		opts = append(opts, zap.AddStacktrace(zap.ErrorLevel))
	} else {
		c = zap.NewProductionConfig()
	}

	levelName := "INFO"
	if cfg.Level != "" {
		levelName = strings.ToUpper(cfg.Level)
	}

	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(levelName)); err != nil {
		return nil, fmt.Errorf("could not parse log level %s", cfg.Level)
	}
	c.Level = level

	return c.Build(opts...)
}

// InitLogger replaces the process logger and returns it
func InitLogger(cfg Config) (*zap.Logger, error) {
	l, err := NewLogger(cfg)
	if err != nil {
		return nil, err
	}
	_logger = l
	return l, nil
}

func NewTmpLogger() *zap.Logger {
	c := zap.NewProductionConfig()
	c.DisableStacktrace = true
	l, err := c.Build()
	if err != nil {
		panic(err)
	}
	return l
}

// Logger Return new logger with context value
// ctx:  nillable
func Logger(ctx context.Context) *zap.Logger {
	return injectXRequestID(_logger, ctx)
}

func SetXRequestIDHeader(headerName string) {
	_xRequestIDHeader = headerName
}

// WithRequestID stores the request id for Logger to pick up
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func injectXRequestID(logger *zap.Logger, ctx context.Context) *zap.Logger {
	if ctx == nil {
		return logger
	}
	requestID := RequestID(ctx)
	if requestID == "" {
		return logger
	}
	return logger.With(zap.String(_xRequestIDHeader, requestID))
}

// RequestID reads the id set by WithRequestID, falling back to incoming gRPC metadata
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	requestIds := md.Get(_xRequestIDHeader)
	if len(requestIds) < 1 {
		return ""
	}
	return requestIds[0]
}
