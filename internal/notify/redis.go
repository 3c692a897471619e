// Package notify publishes and receives pass change signals over Redis pub/sub.
package notify

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisNotifier implements repository.ChangeNotifier on Redis pub/sub channels.
type RedisNotifier struct {
	client    *redis.Client
	namespace string
}

// NewRedisNotifier creates a notifier; channels are prefixed with namespace.
func NewRedisNotifier(client *redis.Client, namespace string) *RedisNotifier {
	return &RedisNotifier{client: client, namespace: namespace}
}

func channelName(namespace, uid string) string {
	return fmt.Sprintf("%s:pass:%s", namespace, uid)
}

// Publish signals that the document for uid changed.
func (n *RedisNotifier) Publish(ctx context.Context, uid string) error {
	return n.client.Publish(ctx, channelName(n.namespace, uid), "changed").Err()
}

// Subscribe returns a signal channel for uid. Signals coalesce when the reader lags:
// a pending signal already means "re-read the document".
func (n *RedisNotifier) Subscribe(ctx context.Context, uid string) (<-chan struct{}, error) {
	ps := n.client.Subscribe(ctx, channelName(n.namespace, uid))
	// wait for the subscription to be confirmed so no publish after return is missed
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", uid, err)
	}

	out := make(chan struct{}, 1)
	msgs := ps.Channel()
	go func() {
		defer close(out)
		defer ps.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out, nil
}

// Ping checks that Redis is reachable.
func (n *RedisNotifier) Ping(ctx context.Context) error {
	return n.client.Ping(ctx).Err()
}
