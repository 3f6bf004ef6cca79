// Package poller consumes catalog events and evicts the cached products they
// touch, so other replicas stop serving stale names and prices.
package poller

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/coffeeshop/shop/internal/cache"
	"github.com/coffeeshop/shop/internal/events"
	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

const retryBackoff = time.Second

type Poller struct {
	reader  messageReader
	cache   cache.ProductCache
	logger  *slog.Logger
	backoff time.Duration
}

func NewPoller(c cache.ProductCache, logger *slog.Logger, brokers ...string) *Poller {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    events.ProductTopic,
		GroupID:  "shop-cache-invalidator",
		MaxBytes: 10e6, // 10MB
	})
	return &Poller{reader: reader, cache: c, logger: logger, backoff: retryBackoff}
}

// Run blocks until ctx is cancelled or the reader is closed. Read errors
// are retried after the backoff.
func (p *Poller) Run(ctx context.Context) {
	for {
		m, err := p.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return
			}
			p.logger.Error("error reading message", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.backoff):
			}
			continue
		}
		p.handleMessage(ctx, m)
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.logger.Error("error closing reader", "error", err)
	}
}

func (p *Poller) handleMessage(ctx context.Context, m kafka.Message) {
	var ev struct {
		Type    string `json:"type"`
		Payload struct {
			ProductID string `json:"product_id"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		p.logger.Warn("error parsing message", "offset", m.Offset, "error", err)
		return
	}

	switch ev.Type {
	case events.ProductUpdated, events.ProductDeleted:
	default:
		return
	}

	productID := ev.Payload.ProductID
	if productID == "" {
		productID = string(m.Key)
	}
	if productID == "" {
		p.logger.Warn("missing product_id", "event_type", ev.Type)
		return
	}

	if err := p.cache.Delete(ctx, productID); err != nil {
		p.logger.Error("failed to delete cache", "product_id", productID, "error", err)
		return
	}
	p.logger.Debug("product evicted", "product_id", productID, "event_type", ev.Type)
}
