// Package events publishes ledger events to RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"time"

	"finance-assistant/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
)

// TransactionLoggedQueue receives one message per stored transaction.
const TransactionLoggedQueue = "transaction.logged"

// TransactionLoggedEvent is published after a transaction is stored.
type TransactionLoggedEvent struct {
	TransactionID int64                  `json:"transaction_id"`
	UserID        int64                  `json:"user_id"`
	Amount        float64                `json:"amount"`
	Category      string                 `json:"category"`
	Date          string                 `json:"date"`
	Type          models.TransactionType `json:"transaction_type"`
	LoggedAt      string                 `json:"logged_at"`
}

// NewTransactionLoggedEvent builds the event for t.
func NewTransactionLoggedEvent(t models.Transaction) TransactionLoggedEvent {
	return TransactionLoggedEvent{
		TransactionID: t.ID,
		UserID:        t.UserID,
		Amount:        t.Amount,
		Category:      t.Category,
		Date:          t.Date,
		Type:          t.Type,
		LoggedAt:      t.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Publisher sends events to a broker, dialing per message.
type Publisher struct {
	url   string
	queue string
}

// NewPublisher creates a Publisher for the broker at url.
func NewPublisher(url string) *Publisher {
	return &Publisher{url: url, queue: TransactionLoggedQueue}
}

// TransactionLogged publishes t as a persistent message.
func (p *Publisher) TransactionLogged(ctx context.Context, t models.Transaction) error {
	body, err := json.Marshal(NewTransactionLoggedEvent(t))
	if err != nil {
		return err
	}
	return p.publish(ctx, body)
}

func (p *Publisher) publish(ctx context.Context, body []byte) error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer func() { _ = ch.Close() }()

	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(
		p.queue, // name
		true,    // durable
		false,   // autoDelete
		false,   // exclusive
		false,   // noWait
		nil,     // args
	); err != nil {
		return err
	}

	return ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
}
