package rabbit

import (
	"context"
)

// Dummy discards every message
type Dummy struct{}

func (n *Dummy) Publish(ctx context.Context, routingKey string, body []byte) error {
	return nil
}
