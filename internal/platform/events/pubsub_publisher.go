package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/fieldstone/storefront/internal/services"
)

// PubSubPublisher publishes order lifecycle and stock ledger events to
// Pub/Sub topics. Either topic may be nil, in which case the matching
// publish is a no-op; callers treat publish failures as non-fatal.
type PubSubPublisher struct {
	orderTopic *pubsub.Topic
	stockTopic *pubsub.Topic
	marshal    func(any) ([]byte, error)
}

// NewPubSubPublisher constructs a Pub/Sub backed event publisher.
func NewPubSubPublisher(orderTopic, stockTopic *pubsub.Topic) (*PubSubPublisher, error) {
	if orderTopic == nil && stockTopic == nil {
		return nil, errors.New("pubsub publisher: at least one topic is required")
	}
	return &PubSubPublisher{
		orderTopic: orderTopic,
		stockTopic: stockTopic,
		marshal:    json.Marshal,
	}, nil
}

// PublishOrderEvent enqueues an order event message on the order topic.
func (p *PubSubPublisher) PublishOrderEvent(ctx context.Context, message services.OrderEventMessage) (string, error) {
	if p == nil || p.orderTopic == nil {
		return "", nil
	}

	data, err := p.marshal(message)
	if err != nil {
		return "", fmt.Errorf("marshal order event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "type", message.Type)
	setAttr(attrs, "orderId", message.OrderID)
	setAttr(attrs, "orderNumber", message.OrderNumber)
	setAttr(attrs, "customerId", message.CustomerID)
	setAttr(attrs, "status", message.Status)

	return p.publish(ctx, p.orderTopic, data, attrs, "order event")
}

// PublishStockEvent enqueues a stock ledger event message on the stock topic.
func (p *PubSubPublisher) PublishStockEvent(ctx context.Context, message services.StockEventMessage) (string, error) {
	if p == nil || p.stockTopic == nil {
		return "", nil
	}

	data, err := p.marshal(message)
	if err != nil {
		return "", fmt.Errorf("marshal stock event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "type", message.Type)
	setAttr(attrs, "productId", message.ProductID)
	setAttr(attrs, "variantId", message.VariantID)
	setAttr(attrs, "orderRef", message.OrderRef)

	return p.publish(ctx, p.stockTopic, data, attrs, "stock event")
}

func (p *PubSubPublisher) publish(ctx context.Context, topic *pubsub.Topic, data []byte, attrs map[string]string, label string) (string, error) {
	result := topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish %s: %w", label, err)
	}
	return id, nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
