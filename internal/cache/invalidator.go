package cache

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

const (
	// ActivationChannel is the Redis Pub/Sub channel used for deployment
	// activation signals. When one edge instance activates a new cache
	// generation it publishes the surviving namespace name; every
	// subscribed instance drops all other namespaces from its local
	// store, so stale generations disappear without waiting for each
	// instance's own activate pass.
	ActivationChannel = "pulsar:cache:activate"
)

// Invalidator listens for activation signals over Redis Pub/Sub and
// drops superseded namespaces from a local store (typically the
// in-memory store of another edge instance).
type Invalidator struct {
	local  Store
	client *redis.Client
	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
}

// NewInvalidator creates an invalidator that subscribes to Redis Pub/Sub
// and drops superseded namespaces from the local store when signals arrive.
func NewInvalidator(local Store, client *redis.Client) *Invalidator {
	return &Invalidator{
		local:  local,
		client: client,
	}
}

// Start begins listening for activation signals. It blocks until the
// context is cancelled or Close is called.
func (iv *Invalidator) Start(ctx context.Context) {
	subCtx, cancel := context.WithCancel(ctx)
	iv.mu.Lock()
	iv.cancel = cancel
	iv.mu.Unlock()

	pubsub := iv.client.Subscribe(subCtx, ActivationChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-subCtx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			// msg.Payload is the namespace that survives activation
			iv.dropOthers(subCtx, msg.Payload)
		}
	}
}

func (iv *Invalidator) dropOthers(ctx context.Context, active string) {
	names, err := iv.local.Namespaces(ctx)
	if err != nil {
		return
	}
	for _, name := range names {
		if name != active {
			_ = iv.local.DropNamespace(ctx, name)
		}
	}
}

// PublishActivation publishes an activation signal naming the namespace
// that survives. Called by the instance that ran the activate pass.
func (iv *Invalidator) PublishActivation(ctx context.Context, namespace string) error {
	return iv.client.Publish(ctx, ActivationChannel, namespace).Err()
}

// Close stops the activation listener.
func (iv *Invalidator) Close() error {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	if iv.closed {
		return nil
	}
	iv.closed = true
	if iv.cancel != nil {
		iv.cancel()
	}
	return nil
}
