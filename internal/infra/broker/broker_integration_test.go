//go:build integration

package broker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/streadway/amqp"

	"github.com/vietddude/lnbridge/internal/core/domain"
)

// TestBroker_PublishRoundTrip requires a RabbitMQ server at localhost:5672.
func TestBroker_PublishRoundTrip(t *testing.T) {
	cfg := Config{Host: "localhost", Port: 5672, Username: "guest", Password: "guest"}

	c, err := Dial(cfg, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	conn, err := amqp.Dial(cfg.URI())
	if err != nil {
		t.Fatalf("consumer dial failed: %v", err)
	}
	defer conn.Close()
	ch, err := conn.Channel()
	if err != nil {
		t.Fatalf("consumer channel failed: %v", err)
	}
	defer ch.Close()

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		t.Fatalf("QueueDeclare failed: %v", err)
	}
	if err := ch.QueueBind(q.Name, "", Exchange, false, nil); err != nil {
		t.Fatalf("QueueBind failed: %v", err)
	}
	msgs, err := ch.Consume(q.Name, "lnbridge-test", true, true, false, false, nil)
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}

	body, _ := json.Marshal(map[string]any{"payment_hash": "ab", "amount_msat": 350000})
	if err := c.Publish(context.Background(), domain.EventKindPaymentReceived, body); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case m := <-msgs:
		if m.RoutingKey != "paymentreceived" || string(m.Body) != string(body) {
			t.Errorf("unexpected delivery key=%s body=%s", m.RoutingKey, m.Body)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}
