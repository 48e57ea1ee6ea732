package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/tnqbao/gau-vm-orchestrator/infra"
	"github.com/tnqbao/gau-vm-orchestrator/infra/produce"
)

// CleanupConsumer reaps cluster resources that the HTTP handlers left behind:
// datavolumes whose VM creation failed, and remote VMs whose local record was
// removed while the cluster delete failed. The API treats those deletes as
// best-effort, so this worker is what eventually makes the cluster converge.
type CleanupConsumer struct {
	channel    *amqp.Channel
	infra      *infra.Infra
	retryDelay time.Duration
}

func NewCleanupConsumer(channel *amqp.Channel, infra *infra.Infra) *CleanupConsumer {
	return &CleanupConsumer{
		channel:    channel,
		infra:      infra,
		retryDelay: 2 * time.Second,
	}
}

func (c *CleanupConsumer) Start(ctx context.Context) error {
	msgs, err := c.channel.Consume(
		produce.OrphanResourceQueue,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register orphan resource consumer: %w", err)
	}

	c.infra.Logger.InfoWithContextf(ctx, "[Cleanup Consumer] Started listening for orphan resources on queue: %s", produce.OrphanResourceQueue)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.infra.Logger.InfoWithContextf(ctx, "[Cleanup Consumer] Shutting down...")
				return
			case msg, ok := <-msgs:
				if !ok {
					c.infra.Logger.WarningWithContextf(ctx, "[Cleanup Consumer] Channel closed")
					return
				}
				c.handleOrphan(ctx, msg)
			}
		}
	}()

	return nil
}

func (c *CleanupConsumer) handleOrphan(ctx context.Context, msg amqp.Delivery) {
	c.infra.Logger.InfoWithContextf(ctx, "[Cleanup Consumer] Received message: %s", string(msg.Body))

	var payload produce.OrphanResourceMessage
	if err := json.Unmarshal(msg.Body, &payload); err != nil {
		c.infra.Logger.ErrorWithContextf(ctx, err, "[Cleanup Consumer] Failed to unmarshal message: %v", err)
		_ = msg.Nack(false, false)
		return
	}

	maxRetries := 3
	var err error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		err = c.deleteOrphan(ctx, payload)
		if err == nil {
			c.infra.Logger.InfoWithContextf(ctx, "[Cleanup Consumer] Successfully cleaned up %s %s/%s", payload.Kind, payload.Namespace, payload.Name)
			_ = msg.Ack(false)
			return
		}

		c.infra.Logger.ErrorWithContextf(ctx, err, "[Cleanup Consumer] Attempt %d/%d failed for %s %s/%s: %v", attempt, maxRetries, payload.Kind, payload.Namespace, payload.Name, err)

		if attempt < maxRetries {
			time.Sleep(time.Duration(attempt) * c.retryDelay)
		}
	}

	// Requeueing here would redeliver a permanently undeletable resource in a
	// hot loop. Reject without requeue so a dead-letter binding (or discard)
	// takes it, and leave the error in the log for operators.
	c.infra.Logger.ErrorWithContextf(ctx, err, "[Cleanup Consumer] Giving up on %s %s/%s after %d attempts, rejecting message", payload.Kind, payload.Namespace, payload.Name, maxRetries)
	_ = msg.Nack(false, false)
}

func (c *CleanupConsumer) deleteOrphan(ctx context.Context, payload produce.OrphanResourceMessage) error {
	var err error
	switch payload.Kind {
	case "DataVolume":
		err = c.infra.Kubevirt.DeleteDataVolume(ctx, payload.Namespace, payload.Name)
	case "VirtualMachine":
		err = c.infra.Kubevirt.DeleteVirtualMachine(ctx, payload.Namespace, payload.Name)
	default:
		return fmt.Errorf("unknown resource kind: %s", payload.Kind)
	}

	// Already gone means the cleanup goal is met.
	if errors.Is(err, infra.ErrNotFound) {
		return nil
	}
	return err
}
