package jobs

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

	"github.com/flss-ops/api/internal/services"
)

func TestPubSubReconciliationPublisherPublishesMessage(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	topic, err := client.CreateTopic(ctx, "pricing-reconciliation")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	publisher, err := NewPubSubReconciliationPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubReconciliationPublisher: %v", err)
	}

	event := services.ReconciliationEvent{
		DraftOrderID: 101,
		Tier:         "wholesale",
		Hash:         "abc123",
		Corrected:    true,
		OccurredAt:   time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC),
	}

	if err := publisher.PublishReconciliationEvent(ctx, event); err != nil {
		t.Fatalf("PublishReconciliationEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload services.ReconciliationEvent
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.DraftOrderID != event.DraftOrderID || payload.Hash != event.Hash {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if attr := messages[0].Attributes["draftOrderId"]; attr != "101" {
		t.Fatalf("expected draftOrderId attribute, got %q", attr)
	}
	if attr := messages[0].Attributes["corrected"]; attr != "true" {
		t.Fatalf("expected corrected attribute, got %q", attr)
	}
	if attr := messages[0].Attributes["tier"]; attr != "wholesale" {
		t.Fatalf("expected tier attribute, got %q", attr)
	}
}

func TestNewPubSubReconciliationPublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubReconciliationPublisher(nil); err == nil {
		t.Fatal("expected an error for a nil topic")
	}
}
