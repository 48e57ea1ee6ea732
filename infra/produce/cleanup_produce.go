package produce

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	CleanupExchange          = "vm.cleanup.exchange"
	OrphanResourceQueue      = "vm.cleanup.orphan"
	OrphanResourceRoutingKey = "vm.cleanup.orphan"
)

// CleanupService publishes cluster resources the request path left behind:
// a datavolume whose VM submission failed, or a VM whose remote delete did
// not succeed before the local row was removed. The consumer binary retries
// their deletion out-of-band.
type CleanupService struct {
	channel *amqp.Channel
}

type OrphanResourceMessage struct {
	Kind      string `json:"kind"`
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	Reason    string `json:"reason"`
	Timestamp int64  `json:"timestamp"`
}

func InitCleanupService(channel *amqp.Channel) *CleanupService {
	service := &CleanupService{
		channel: channel,
	}

	err := channel.ExchangeDeclare(
		CleanupExchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		panic("Failed to declare Cleanup exchange: " + err.Error())
	}

	_, err = channel.QueueDeclare(
		OrphanResourceQueue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		panic("Failed to declare Orphan resource queue: " + err.Error())
	}

	err = channel.QueueBind(
		OrphanResourceQueue,
		OrphanResourceRoutingKey,
		CleanupExchange,
		false,
		nil,
	)
	if err != nil {
		panic("Failed to bind Orphan resource queue: " + err.Error())
	}

	return service
}

func (s *CleanupService) PublishOrphanResource(ctx context.Context, kind, namespace, name, reason string) error {
	message := OrphanResourceMessage{
		Kind:      kind,
		Namespace: namespace,
		Name:      name,
		Reason:    reason,
		Timestamp: time.Now().Unix(),
	}

	body, err := json.Marshal(message)
	if err != nil {
		return err
	}

	return s.channel.PublishWithContext(
		ctx,
		CleanupExchange,
		OrphanResourceRoutingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
}
