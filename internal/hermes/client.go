package hermes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/MikeSquared-Agency/casi/internal/store"
)

type Client struct {
	conn   *nats.Conn
	subs   []*nats.Subscription
	origin string
	logger *slog.Logger
}

func NewClient(ctx context.Context, url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.Name("casi"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Client{conn: nc, origin: uuid.NewString(), logger: logger}, nil
}

// Origin identifies this process on the bus.
func (c *Client) Origin() string { return c.origin }

func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.conn.Publish(subject, payload)
}

// PublishLearned announces a freshly persisted pattern. The stored
// embedding is left off to keep messages small.
func (c *Client) PublishLearned(_ context.Context, p store.Pattern) error {
	p.Embedding = nil
	if err := c.Publish(SubjectPatternLearned, PatternLearned{Origin: c.origin, Pattern: p}); err != nil {
		return fmt.Errorf("publish learned pattern: %w", err)
	}
	return nil
}

func (c *Client) Subscribe(subject string, handler func(subject string, data []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	c.subs = append(c.subs, sub)
	c.logger.Info("subscribed", "subject", subject)
	return nil
}

// OnPatternLearned subscribes fn to patterns learned by other replicas.
func (c *Client) OnPatternLearned(fn func(store.Pattern)) error {
	return c.Subscribe(SubjectPatternLearned, func(_ string, data []byte) {
		var evt PatternLearned
		if err := json.Unmarshal(data, &evt); err != nil {
			c.logger.Error("failed to parse learned pattern event", "error", err)
			return
		}
		if evt.Origin == c.origin {
			return
		}
		fn(evt.Pattern)
	})
}

// OnVote subscribes fn to votes cast outside the HTTP API.
func (c *Client) OnVote(fn func(VoteCast)) error {
	return c.Subscribe(SubjectVote, func(_ string, data []byte) {
		var evt VoteCast
		if err := json.Unmarshal(data, &evt); err != nil {
			c.logger.Error("failed to parse vote event", "error", err)
			return
		}
		fn(evt)
	})
}

func (c *Client) Close() {
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.conn.Close()
}
