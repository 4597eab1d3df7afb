// Package queue provides the SQS-based dead-letter producer for webhook
// events whose processing failed after the gateway was already acknowledged.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"subhub/internal/config"
	"subhub/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// DeadLetter publishes failed webhook events to an SQS queue for later
// inspection and replay. The webhook endpoint always acknowledges the
// gateway with 200, so this queue is the only durable trace of a dropped
// event.
type DeadLetter struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewDeadLetter creates a DeadLetter producer. An empty WebhookDLQ in the
// configuration disables publishing; Publish becomes a logged no-op.
func NewDeadLetter(client SQSSender, awsCfg config.AWSConfig, logger *slog.Logger) *DeadLetter {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeadLetter{
		client:   client,
		queueURL: awsCfg.WebhookDLQ,
		logger:   logger,
	}
}

// Enabled reports whether a queue URL is configured.
func (d *DeadLetter) Enabled() bool {
	return d.queueURL != "" && d.client != nil
}

// Publish serializes the dead letter and sends it to the configured queue.
// A send failure is returned to the caller for logging only; the webhook
// acknowledgment path never depends on it.
func (d *DeadLetter) Publish(ctx context.Context, letter types.WebhookDeadLetter) error {
	if !d.Enabled() {
		d.logger.WarnContext(ctx, "webhook dead letter dropped, no queue configured",
			"subscription_id", letter.SubscriptionID,
			"reason", letter.Reason,
		)
		return nil
	}

	if letter.EventID == "" {
		letter.EventID = uuid.NewString()
	}
	if letter.FailedAt.IsZero() {
		letter.FailedAt = time.Now().UTC()
	}

	body, err := json.Marshal(letter)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal dead letter: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(d.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"reason": {
				DataType:    aws.String("String"),
				StringValue: aws.String(letter.Reason),
			},
		},
	}

	if _, err := d.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("queue: failed to send dead letter to %s: %w", d.queueURL, err)
	}

	d.logger.InfoContext(ctx, "webhook dead letter published",
		"queue_url", d.queueURL,
		"event_id", letter.EventID,
		"subscription_id", letter.SubscriptionID,
		"status", letter.Status,
		"reason", letter.Reason,
	)

	return nil
}
