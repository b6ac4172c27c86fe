package iot

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ocpalps/parkmeter/internal/domain"
	"github.com/ocpalps/parkmeter/internal/repository"
	"github.com/ocpalps/parkmeter/internal/service"
)

// SQSAPI is the subset of the SQS client the consumer uses.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// TrafficConsumer registers gate traffic published to an SQS queue. Each
// message body is one JSON vehicle access.
type TrafficConsumer struct {
	client     SQSAPI
	queueURL   string
	ledger     service.Ledger
	log        *zap.Logger
	retryDelay time.Duration
}

func NewTrafficConsumer(client SQSAPI, queueURL string, ledger service.Ledger, log *zap.Logger) *TrafficConsumer {
	return &TrafficConsumer{
		client:     client,
		queueURL:   queueURL,
		ledger:     ledger,
		log:        log.Named("sqs"),
		retryDelay: 5 * time.Second,
	}
}

func (c *TrafficConsumer) Start(ctx context.Context) {
	c.log.Info("listening for traffic", zap.String("queue", c.queueURL))
	for {
		select {
		case <-ctx.Done():
			c.log.Info("context cancelled, stopping")
			return
		default:
		}

		result, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(c.queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
			VisibilityTimeout:   60,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Error("receive failed", zap.Error(err))
			select {
			case <-time.After(c.retryDelay):
			case <-ctx.Done():
				return
			}
			continue
		}

		for _, message := range result.Messages {
			if c.handle(ctx, message) {
				c.deleteMessage(ctx, message.ReceiptHandle)
			}
		}
	}
}

// handle registers one message and reports whether it should be deleted.
// Malformed and invalid accesses are dropped; store failures are redelivered.
// An access without an id takes the message id, so a redelivery is recognized
// as a duplicate and counted once.
func (c *TrafficConsumer) handle(ctx context.Context, message types.Message) bool {
	body := aws.ToString(message.Body)
	if body == "" {
		c.log.Warn("empty message body, deleting")
		return true
	}
	var access domain.VehicleAccess
	if err := json.Unmarshal([]byte(body), &access); err != nil {
		c.log.Warn("undecodable traffic message, deleting", zap.Error(err))
		return true
	}
	if access.ID == "" {
		access.ID = aws.ToString(message.MessageId)
	}

	res := c.ledger.RegisterAccess(ctx, access)
	switch {
	case res.Persisted():
		return true
	case errors.Is(res.Err, domain.ErrInvalidAccess), errors.Is(res.Err, repository.ErrDuplicateEntry):
		c.log.Warn("rejected access in queue, deleting", zap.String("message", res.Message))
		return true
	default:
		c.log.Error("registration failed, message will be redelivered", zap.String("message", res.Message))
		return false
	}
}

func (c *TrafficConsumer) deleteMessage(ctx context.Context, receiptHandle *string) {
	if receiptHandle == nil {
		c.log.Warn("missing receipt handle, cannot delete message")
		return
	}
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: receiptHandle,
	})
	if err != nil {
		c.log.Error("delete failed", zap.Error(err))
	}
}
