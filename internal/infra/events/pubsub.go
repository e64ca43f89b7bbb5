// Package events publishes committed ledger changes to Google Cloud Pub/Sub.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"fieldledger/internal/core"
	"fieldledger/pkg/domain"
)

// Event is the JSON payload of one published change.
type Event struct {
	ID         string          `json:"id"`
	Account    string          `json:"account"`
	Entity     string          `json:"entity"`
	Action     string          `json:"action"`
	EntityID   string          `json:"entity_id"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// NewClient connects to Pub/Sub. Empty credentialsJSON falls back to
// application default credentials.
func NewClient(ctx context.Context, projectID, credentialsJSON string, opts ...option.ClientOption) (*pubsub.Client, error) {
	if projectID == "" {
		return nil, errors.New("pubsub project id is required")
	}
	if credentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credentialsJSON)))
	}
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}
	return client, nil
}

// EnsureTopic returns the named topic, creating it when missing.
func EnsureTopic(ctx context.Context, client *pubsub.Client, name string) (*pubsub.Topic, error) {
	if client == nil {
		return nil, errors.New("pubsub client is nil")
	}
	if name == "" {
		return nil, errors.New("topic is required")
	}
	topic := client.Topic(name)
	ok, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check topic %q: %w", name, err)
	}
	if ok {
		return topic, nil
	}
	topic, err = client.CreateTopic(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("create topic %q: %w", name, err)
	}
	return topic, nil
}

// Option customises a Publisher.
type Option func(*Publisher)

// WithAccount stamps every event with account.
func WithAccount(account string) Option {
	return func(p *Publisher) { p.account = account }
}

// WithLogger reports publish failures.
func WithLogger(logger core.Logger) Option {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithClock overrides the event timestamp source.
func WithClock(clock core.Clock) Option {
	return func(p *Publisher) {
		if clock != nil {
			p.clock = clock
		}
	}
}

type topic interface {
	Publish(ctx context.Context, msg *pubsub.Message) *pubsub.PublishResult
	Stop()
}

// Publisher forwards store change notifications to a topic. Publishing is
// asynchronous; Close waits for outstanding results.
type Publisher struct {
	topic   topic
	account string
	logger  core.Logger
	clock   core.Clock
	wg      sync.WaitGroup

	mu     sync.Mutex
	failed int
}

// NewPublisher wraps t.
func NewPublisher(t *pubsub.Topic, opts ...Option) *Publisher {
	p := &Publisher{
		topic:  t,
		logger: quietLogger{},
		clock:  core.ClockFunc(func() time.Time { return time.Now().UTC() }),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Attach subscribes the publisher to store and returns the unsubscribe func.
func (p *Publisher) Attach(store domain.PersistentStore) func() {
	return store.Subscribe(func(changes []domain.Change) {
		p.Publish(context.Background(), changes)
	})
}

// Publish enqueues one message per change.
func (p *Publisher) Publish(ctx context.Context, changes []domain.Change) {
	now := p.clock.Now()
	for _, change := range changes {
		evt, err := p.event(change, now)
		if err != nil {
			p.fail(err, "encode change", string(change.Entity), change.EntityID())
			continue
		}
		data, err := json.Marshal(evt)
		if err != nil {
			p.fail(err, "encode event", evt.Entity, evt.EntityID)
			continue
		}
		result := p.topic.Publish(ctx, &pubsub.Message{
			Data: data,
			Attributes: map[string]string{
				"entity":  evt.Entity,
				"action":  evt.Action,
				"account": evt.Account,
			},
		})
		p.wg.Add(1)
		go func(entity, id string) {
			defer p.wg.Done()
			if _, err := result.Get(context.WithoutCancel(ctx)); err != nil {
				p.fail(err, "publish change", entity, id)
			}
		}(evt.Entity, evt.EntityID)
	}
}

func (p *Publisher) event(change domain.Change, at time.Time) (Event, error) {
	evt := Event{
		ID:         uuid.NewString(),
		Account:    p.account,
		Entity:     string(change.Entity),
		Action:     string(change.Action),
		EntityID:   change.EntityID(),
		OccurredAt: at,
	}
	var err error
	if change.Before != nil {
		if evt.Before, err = json.Marshal(change.Before); err != nil {
			return Event{}, err
		}
	}
	if change.After != nil {
		if evt.After, err = json.Marshal(change.After); err != nil {
			return Event{}, err
		}
	}
	return evt, nil
}

func (p *Publisher) fail(err error, msg, entity, id string) {
	p.mu.Lock()
	p.failed++
	p.mu.Unlock()
	p.logger.Error(msg, "entity", entity, "entity_id", id, "error", err)
}

// Failed reports how many changes could not be published.
func (p *Publisher) Failed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failed
}

// Close flushes pending messages and stops the topic's background publisher.
func (p *Publisher) Close() {
	p.wg.Wait()
	p.topic.Stop()
}

type quietLogger struct{}

func (quietLogger) Debug(string, ...any) {}
func (quietLogger) Info(string, ...any)  {}
func (quietLogger) Warn(string, ...any)  {}
func (quietLogger) Error(string, ...any) {}
