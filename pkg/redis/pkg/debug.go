package redis

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	logging "candor/pkg/logger/pkg"
)

type debugHook struct {
	enabled bool
}

func (h *debugHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (h *debugHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if h.enabled {
			logging.Logger(ctx).Debug("redis command", zap.String("cmd", cmd.Name()), zap.Int("args", len(cmd.Args())))
		}

		return next(ctx, cmd)
	}
}

func (h *debugHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		if h.enabled {
			for _, c := range cmds {
				logging.Logger(ctx).Debug("redis pipeline command", zap.String("cmd", c.Name()), zap.Int("args", len(c.Args())))
			}
		}

		return next(ctx, cmds)
	}
}
