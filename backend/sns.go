package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/kamal-github/outbox-sweeper/event"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sns"
	"github.com/aws/aws-sdk-go/service/sns/snsiface"
	"go.uber.org/zap"
)

// SimpleNotificationService dispatches outbox batches to an SNS topic.
type SimpleNotificationService struct {
	snsConn snsiface.SNSAPI

	logger *zap.Logger
}

// NewSimpleNotificationService creates a SimpleNotificationService dispatcher.
func NewSimpleNotificationService(snsConn snsiface.SNSAPI, logger *zap.Logger) (*SimpleNotificationService, error) {
	if snsConn == nil {
		return nil, errors.New("SimpleNotificationService: invalid SNS connection")
	}
	if logger == nil {
		return nil, errors.New("SimpleNotificationService: invalid logger")
	}

	return &SimpleNotificationService{
		snsConn: snsConn,
		logger:  logger,
	}, nil
}

// SendBatch publishes the messages to the SNS topic at topicARN in a
// single PublishBatch call. As with SQS, per-entry failures on a
// successful call count as overall failure.
func (s *SimpleNotificationService) SendBatch(ctx context.Context, topicARN string, msgs []event.OutboxMessage) error {
	if len(msgs) == 0 {
		return nil
	}

	entries := make([]*sns.PublishBatchRequestEntry, 0, len(msgs))
	for _, m := range msgs {
		entries = append(entries, &sns.PublishBatchRequestEntry{
			Id:      aws.String(m.MessageID),
			Message: aws.String(m.Body),
		})
	}

	out, err := s.snsConn.PublishBatchWithContext(ctx, &sns.PublishBatchInput{
		TopicArn:                   aws.String(topicARN),
		PublishBatchRequestEntries: entries,
	})
	if err != nil {
		return fmt.Errorf("sns.SendBatch: %w", err)
	}

	if len(out.Failed) > 0 {
		s.logger.Error("SNS rejected batch entries",
			zap.Int("failed", len(out.Failed)),
			zap.Int("total", len(entries)),
		)
		return fmt.Errorf("sns.SendBatch: %d of %d entries rejected", len(out.Failed), len(entries))
	}

	return nil
}

// Close Not implemented yet. No documentation found for
// closing AWS session.
func (s *SimpleNotificationService) Close() error {
	return errors.New("no method on SNS connection")
}
