package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/fieldstone/storefront/internal/services"
)

func newTestTopic(t *testing.T, srv *pstest.Server, name string) (*pubsub.Client, *pubsub.Topic) {
	t.Helper()
	ctx := context.Background()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})

	topic, err := client.CreateTopic(ctx, name)
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	return client, topic
}

func TestPubSubPublisherPublishesOrderEvent(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	_, topic := newTestTopic(t, srv, "order-events")

	publisher, err := NewPubSubPublisher(topic, nil)
	if err != nil {
		t.Fatalf("NewPubSubPublisher: %v", err)
	}

	occurredAt := time.Date(2026, 3, 6, 9, 0, 0, 0, time.UTC)
	msg := services.OrderEventMessage{
		Type:        "order.created",
		OrderID:     "ord_test",
		OrderNumber: "FS-2026-000042",
		CustomerID:  "cust-1",
		Status:      "PENDING",
		Total:       200000,
		OccurredAt:  occurredAt,
	}

	if _, err := publisher.PublishOrderEvent(ctx, msg); err != nil {
		t.Fatalf("PublishOrderEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload services.OrderEventMessage
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.OrderID != msg.OrderID || payload.Total != msg.Total {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if attr := messages[0].Attributes["type"]; attr != "order.created" {
		t.Fatalf("expected type attribute, got %q", attr)
	}
	if attr := messages[0].Attributes["orderNumber"]; attr != "FS-2026-000042" {
		t.Fatalf("expected order number attribute, got %q", attr)
	}
}

func TestPubSubPublisherPublishesStockEvent(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	_, topic := newTestTopic(t, srv, "stock-events")

	publisher, err := NewPubSubPublisher(nil, topic)
	if err != nil {
		t.Fatalf("NewPubSubPublisher: %v", err)
	}

	msg := services.StockEventMessage{
		Type:       "stock.reserved",
		ProductID:  "prod-1",
		VariantID:  "var-1",
		OrderRef:   "ord_test",
		Delta:      -2,
		Stock:      1,
		OccurredAt: time.Date(2026, 3, 6, 9, 0, 0, 0, time.UTC),
	}

	if _, err := publisher.PublishStockEvent(ctx, msg); err != nil {
		t.Fatalf("PublishStockEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	if attr := messages[0].Attributes["variantId"]; attr != "var-1" {
		t.Fatalf("expected variant attribute, got %q", attr)
	}
}

func TestPubSubPublisherSkipsMissingTopic(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	_, topic := newTestTopic(t, srv, "order-events")

	publisher, err := NewPubSubPublisher(topic, nil)
	if err != nil {
		t.Fatalf("NewPubSubPublisher: %v", err)
	}

	// Stock topic is absent: publishing is a silent no-op.
	id, err := publisher.PublishStockEvent(ctx, services.StockEventMessage{Type: "stock.released"})
	if err != nil {
		t.Fatalf("PublishStockEvent: %v", err)
	}
	if id != "" {
		t.Fatalf("expected empty message id, got %q", id)
	}
	if got := len(srv.Messages()); got != 0 {
		t.Fatalf("expected no messages, got %d", got)
	}
}
