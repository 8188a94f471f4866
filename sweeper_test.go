package sweeper_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	sweeper "github.com/kamal-github/outbox-sweeper"
	"github.com/kamal-github/outbox-sweeper/backend"
	backendmock "github.com/kamal-github/outbox-sweeper/backend/mocks"
	storemock "github.com/kamal-github/outbox-sweeper/datastore/mocks"
	"github.com/kamal-github/outbox-sweeper/event"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func ordersBatch(addresses ...string) []event.OutboxMessage {
	msgs := make([]event.OutboxMessage, 0, len(addresses))
	for i, a := range addresses {
		msgs = append(msgs, event.OutboxMessage{
			ID:             int64(i + 1),
			MessageID:      "m-" + string(rune('1'+i)),
			MessageType:    "orders",
			ChannelAddress: a,
			Timestamp:      time.Date(2024, 5, 1, 10, 0, i, 0, time.UTC),
			Body:           `{"n":1}`,
		})
	}

	return msgs
}

func TestEngine_Sweep_noPendingTopics(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := storemock.NewMockStore(ctrl)
	store.EXPECT().PendingTopics(gomock.Any()).Return([]string{}, nil)

	e := sweeper.Engine{
		Store:       store,
		Dispatchers: map[string]backend.Dispatcher{},
		BatchSize:   10,
		Logger:      zap.NewNop(),
	}

	assert.NoError(t, e.Sweep(context.TODO()))
}

func TestEngine_Sweep_discoveryErrorAbortsInvocation(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := storemock.NewMockStore(ctrl)
	store.EXPECT().PendingTopics(gomock.Any()).Return(nil, errors.New("connection reset"))

	e := sweeper.Engine{
		Store:       store,
		Dispatchers: map[string]backend.Dispatcher{},
		BatchSize:   10,
		Logger:      zap.NewNop(),
	}

	assert.Error(t, e.Sweep(context.TODO()))
}

func TestEngine_Sweep_dispatchesAndMarksQueueBatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	msgs := ordersBatch("https://queue.example/orders", "https://queue.example/orders")

	batch := storemock.NewMockBatch(ctrl)
	batch.EXPECT().Messages().Return(msgs)
	batch.EXPECT().Mark(gomock.Any()).Return(nil)
	batch.EXPECT().Release().Return(nil)

	store := storemock.NewMockStore(ctrl)
	store.EXPECT().PendingTopics(gomock.Any()).Return([]string{"orders"}, nil)
	store.EXPECT().ClaimBatch(gomock.Any(), "orders", 10).Return(batch, nil)

	queue := backendmock.NewMockDispatcher(ctrl)
	queue.EXPECT().SendBatch(gomock.Any(), "https://queue.example/orders", msgs).Return(nil)

	e := sweeper.Engine{
		Store:       store,
		Dispatchers: map[string]backend.Dispatcher{backend.SQS: queue},
		BatchSize:   10,
		Logger:      zap.NewNop(),
	}

	assert.NoError(t, e.Sweep(context.TODO()))
}

func TestEngine_Sweep_routesPrefixedAddressToFanout(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	msgs := ordersBatch("SNS::arn:example:topic")

	batch := storemock.NewMockBatch(ctrl)
	batch.EXPECT().Messages().Return(msgs)
	batch.EXPECT().Mark(gomock.Any()).Return(nil)
	batch.EXPECT().Release().Return(nil)

	store := storemock.NewMockStore(ctrl)
	store.EXPECT().PendingTopics(gomock.Any()).Return([]string{"orders"}, nil)
	store.EXPECT().ClaimBatch(gomock.Any(), "orders", 10).Return(batch, nil)

	fanout := backendmock.NewMockDispatcher(ctrl)
	fanout.EXPECT().SendBatch(gomock.Any(), "arn:example:topic", msgs).Return(nil)

	e := sweeper.Engine{
		Store:       store,
		Dispatchers: map[string]backend.Dispatcher{backend.SNS: fanout},
		BatchSize:   10,
		Logger:      zap.NewNop(),
	}

	assert.NoError(t, e.Sweep(context.TODO()))
}

func TestEngine_Sweep_dispatchFailureLeavesRowsPending(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	msgs := ordersBatch("https://queue.example/orders")

	batch := storemock.NewMockBatch(ctrl)
	batch.EXPECT().Messages().Return(msgs)
	// Mark must never be called; Release rolls the claim back.
	batch.EXPECT().Release().Return(nil)

	store := storemock.NewMockStore(ctrl)
	store.EXPECT().PendingTopics(gomock.Any()).Return([]string{"orders"}, nil)
	store.EXPECT().ClaimBatch(gomock.Any(), "orders", 10).Return(batch, nil)

	queue := backendmock.NewMockDispatcher(ctrl)
	queue.EXPECT().SendBatch(gomock.Any(), "https://queue.example/orders", msgs).Return(errors.New("rejected"))

	e := sweeper.Engine{
		Store:       store,
		Dispatchers: map[string]backend.Dispatcher{backend.SQS: queue},
		BatchSize:   10,
		Logger:      zap.NewNop(),
	}

	// A topic-level failure is contained, not an invocation failure.
	assert.NoError(t, e.Sweep(context.TODO()))
}

func TestEngine_Sweep_markFailureIsContained(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	msgs := ordersBatch("https://queue.example/orders")

	batch := storemock.NewMockBatch(ctrl)
	batch.EXPECT().Messages().Return(msgs)
	batch.EXPECT().Mark(gomock.Any()).Return(errors.New("connection reset"))
	batch.EXPECT().Release().Return(nil)

	store := storemock.NewMockStore(ctrl)
	store.EXPECT().PendingTopics(gomock.Any()).Return([]string{"orders"}, nil)
	store.EXPECT().ClaimBatch(gomock.Any(), "orders", 10).Return(batch, nil)

	queue := backendmock.NewMockDispatcher(ctrl)
	queue.EXPECT().SendBatch(gomock.Any(), "https://queue.example/orders", msgs).Return(nil)

	e := sweeper.Engine{
		Store:       store,
		Dispatchers: map[string]backend.Dispatcher{backend.SQS: queue},
		BatchSize:   10,
		Logger:      zap.NewNop(),
	}

	assert.NoError(t, e.Sweep(context.TODO()))
}

func TestEngine_Sweep_failingTopicDoesNotAbortOthers(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := storemock.NewMockStore(ctrl)
	store.EXPECT().PendingTopics(gomock.Any()).Return([]string{"orders", "payments"}, nil)

	// First topic fails at claim time.
	store.EXPECT().ClaimBatch(gomock.Any(), "orders", 10).Return(nil, errors.New("connection reset"))

	// Second topic still dispatches.
	msgs := []event.OutboxMessage{{
		ID:             7,
		MessageID:      "m-7",
		MessageType:    "payments",
		ChannelAddress: "https://queue.example/payments",
		Body:           `{}`,
	}}

	batch := storemock.NewMockBatch(ctrl)
	batch.EXPECT().Messages().Return(msgs)
	batch.EXPECT().Mark(gomock.Any()).Return(nil)
	batch.EXPECT().Release().Return(nil)
	store.EXPECT().ClaimBatch(gomock.Any(), "payments", 10).Return(batch, nil)

	queue := backendmock.NewMockDispatcher(ctrl)
	queue.EXPECT().SendBatch(gomock.Any(), "https://queue.example/payments", msgs).Return(nil)

	e := sweeper.Engine{
		Store:       store,
		Dispatchers: map[string]backend.Dispatcher{backend.SQS: queue},
		BatchSize:   10,
		Logger:      zap.NewNop(),
	}

	assert.NoError(t, e.Sweep(context.TODO()))
}

func TestEngine_Sweep_emptyClaimIsANoOp(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	batch := storemock.NewMockBatch(ctrl)
	batch.EXPECT().Messages().Return([]event.OutboxMessage{})
	batch.EXPECT().Release().Return(nil)

	store := storemock.NewMockStore(ctrl)
	store.EXPECT().PendingTopics(gomock.Any()).Return([]string{"orders"}, nil)
	store.EXPECT().ClaimBatch(gomock.Any(), "orders", 10).Return(batch, nil)

	e := sweeper.Engine{
		Store:       store,
		Dispatchers: map[string]backend.Dispatcher{},
		BatchSize:   10,
		Logger:      zap.NewNop(),
	}

	assert.NoError(t, e.Sweep(context.TODO()))
}

func TestEngine_Sweep_unknownBackendLeavesRowsPending(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	msgs := ordersBatch("RABBITMQ::orders")

	batch := storemock.NewMockBatch(ctrl)
	batch.EXPECT().Messages().Return(msgs)
	batch.EXPECT().Release().Return(nil)

	store := storemock.NewMockStore(ctrl)
	store.EXPECT().PendingTopics(gomock.Any()).Return([]string{"orders"}, nil)
	store.EXPECT().ClaimBatch(gomock.Any(), "orders", 10).Return(batch, nil)

	// No rabbit dispatcher configured: the topic fails, nothing is
	// marked, the sweep itself still succeeds.
	e := sweeper.Engine{
		Store:       store,
		Dispatchers: map[string]backend.Dispatcher{},
		BatchSize:   10,
		Logger:      zap.NewNop(),
	}

	assert.NoError(t, e.Sweep(context.TODO()))
}
