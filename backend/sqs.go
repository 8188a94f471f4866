package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/kamal-github/outbox-sweeper/event"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
	"go.uber.org/zap"
)

// SimpleQueueService dispatches outbox batches to an SQS queue.
type SimpleQueueService struct {
	sqsConn sqsiface.SQSAPI

	logger *zap.Logger
}

// NewSimpleQueueService creates a SimpleQueueService dispatcher.
func NewSimpleQueueService(sqsConn sqsiface.SQSAPI, logger *zap.Logger) (*SimpleQueueService, error) {
	if sqsConn == nil {
		return nil, errors.New("SimpleQueueService: invalid SQS connection")
	}
	if logger == nil {
		return nil, errors.New("SimpleQueueService: invalid logger")
	}

	return &SimpleQueueService{
		sqsConn: sqsConn,
		logger:  logger,
	}, nil
}

// SendBatch relays the messages to the SQS queue at queueURL in a single
// SendMessageBatch call. SQS reports per-entry failures on a successful
// call, so a non-empty Failed list is still an overall failure.
func (s *SimpleQueueService) SendBatch(ctx context.Context, queueURL string, msgs []event.OutboxMessage) error {
	if len(msgs) == 0 {
		return nil
	}

	entries := make([]*sqs.SendMessageBatchRequestEntry, 0, len(msgs))
	for _, m := range msgs {
		entries = append(entries, &sqs.SendMessageBatchRequestEntry{
			Id:          aws.String(m.MessageID),
			MessageBody: aws.String(m.Body),
		})
	}

	out, err := s.sqsConn.SendMessageBatchWithContext(ctx, &sqs.SendMessageBatchInput{
		QueueUrl: aws.String(queueURL),
		Entries:  entries,
	})
	if err != nil {
		return fmt.Errorf("sqs.SendBatch: %w", err)
	}

	if len(out.Failed) > 0 {
		s.logger.Error("SQS rejected batch entries",
			zap.Int("failed", len(out.Failed)),
			zap.Int("total", len(entries)),
		)
		return fmt.Errorf("sqs.SendBatch: %d of %d entries rejected", len(out.Failed), len(entries))
	}

	return nil
}

// Close Not implemented yet. No documentation found for
// closing AWS session.
func (s *SimpleQueueService) Close() error {
	return errors.New("no method on SQS connection")
}
