// Package events publishes reconciliation outcomes to a Redis stream.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/nimasrn/bank-reconciler/pkg/redis"
)

const TypePaymentMatched = "payment.matched"

// PaymentMatched is emitted once per committed match.
type PaymentMatched struct {
	TransactionID string    `json:"transaction_id"`
	OrderID       string    `json:"order_id"`
	UserID        string    `json:"user_id"`
	Amount        int64     `json:"amount"`
	PaymentStatus string    `json:"payment_status"`
	Path          string    `json:"path"`
	MatchedAt     time.Time `json:"matched_at"`
}

type Config struct {
	Stream string
	// MaxLen trims the stream approximately after each publish. Zero keeps everything.
	MaxLen int64
}

type Publisher struct {
	adapter redis.RedisAdapter
	config  Config
}

func NewPublisher(adapter redis.RedisAdapter, config Config) (*Publisher, error) {
	if config.Stream == "" {
		return nil, fmt.Errorf("stream name is required")
	}
	return &Publisher{adapter: adapter, config: config}, nil
}

func (p *Publisher) Stream() string {
	return p.config.Stream
}

// Publish appends a raw event to the stream and returns its stream id.
func (p *Publisher) Publish(ctx context.Context, eventType string, data []byte, metadata map[string]string) (string, error) {
	values := map[string]interface{}{
		"type":      eventType,
		"data":      string(data),
		"timestamp": time.Now().Unix(),
	}
	for k, v := range metadata {
		values["meta_"+k] = v
	}

	id, err := p.adapter.XAdd(ctx, p.config.Stream, values)
	if err != nil {
		return "", fmt.Errorf("failed to publish event: %w", err)
	}

	if p.config.MaxLen > 0 {
		_ = p.adapter.XTrimApprox(ctx, p.config.Stream, p.config.MaxLen)
	}
	return id, nil
}

func (p *Publisher) PublishJSON(ctx context.Context, eventType string, v interface{}, metadata map[string]string) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return p.Publish(ctx, eventType, data, metadata)
}

func (p *Publisher) PaymentMatched(ctx context.Context, e PaymentMatched) error {
	_, err := p.PublishJSON(ctx, TypePaymentMatched, e, map[string]string{
		"order_id": e.OrderID,
		"amount":   strconv.FormatInt(e.Amount, 10),
	})
	return err
}

// Event is a decoded stream entry.
type Event struct {
	ID       string
	Type     string
	Data     []byte
	Metadata map[string]string
}

// Read returns the entries between start and stop, "-" and "+" for the whole stream.
func (p *Publisher) Read(ctx context.Context, start, stop string) ([]Event, error) {
	msgs, err := p.adapter.XRange(ctx, p.config.Stream, start, stop)
	if err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toEvent(m))
	}
	return out, nil
}

func toEvent(m redis.StreamMessage) Event {
	e := Event{ID: m.ID, Metadata: make(map[string]string)}
	for k, v := range m.Values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		switch {
		case k == "type":
			e.Type = s
		case k == "data":
			e.Data = []byte(s)
		case len(k) > 5 && k[:5] == "meta_":
			e.Metadata[k[5:]] = s
		}
	}
	return e
}
