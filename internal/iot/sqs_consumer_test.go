package iot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ocpalps/parkmeter/internal/domain"
	"github.com/ocpalps/parkmeter/internal/repository"
	"github.com/ocpalps/parkmeter/internal/repository/memory"
	"github.com/ocpalps/parkmeter/internal/service"
)

type fakeLedger struct {
	mu       sync.Mutex
	accesses []domain.VehicleAccess
	result   func(domain.VehicleAccess) domain.PersistenceResult
}

func (f *fakeLedger) Initialize(context.Context) error { return nil }
func (f *fakeLedger) IsInitialized() bool              { return true }

func (f *fakeLedger) RegisterAccess(_ context.Context, a domain.VehicleAccess) domain.PersistenceResult {
	f.mu.Lock()
	f.accesses = append(f.accesses, a)
	f.mu.Unlock()
	if err := a.Validate(); err != nil {
		return domain.Failed(err)
	}
	if f.result != nil {
		return f.result(a)
	}
	return domain.Completed("id-" + a.VehicleID)
}

func (f *fakeLedger) GetParkingStatus(context.Context, int) (*domain.ParkingStatus, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeLedger) GetLastVehicleAccess(context.Context, int, string) (*domain.VehicleAccess, error) {
	return nil, errors.New("not implemented")
}

type fakeSQS struct {
	mu       sync.Mutex
	batches  [][]types.Message
	deleted  []string
	drained  chan struct{}
	received int
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, _ *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	if f.received < len(f.batches) {
		batch := f.batches[f.received]
		f.received++
		f.mu.Unlock()
		return &sqs.ReceiveMessageOutput{Messages: batch}, nil
	}
	f.mu.Unlock()

	select {
	case f.drained <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *fakeSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func msg(handle, body string) types.Message {
	return types.Message{MessageId: aws.String("msg-" + handle), ReceiptHandle: aws.String(handle), Body: aws.String(body)}
}

func TestTrafficConsumer_DeletesHandledMessages(t *testing.T) {
	ledger := &fakeLedger{result: func(a domain.VehicleAccess) domain.PersistenceResult {
		if a.VehicleID == "DOWN" {
			return domain.Failed(service.ErrStoreUnavailable)
		}
		return domain.Completed("id")
	}}
	client := &fakeSQS{
		drained: make(chan struct{}, 1),
		batches: [][]types.Message{{
			msg("ok", `{"facilityId":1,"vehicleId":"AB123CD","direction":1}`),
			msg("invalid", `{"facilityId":1,"vehicleId":"","direction":1}`),
			msg("garbage", `{not json`),
			msg("empty", ``),
			msg("retry", `{"facilityId":1,"vehicleId":"DOWN","direction":-1}`),
		}},
	}
	consumer := NewTrafficConsumer(client, "https://sqs.eu-west-1.amazonaws.com/1/traffic", ledger, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		consumer.Start(ctx)
		close(done)
	}()

	select {
	case <-client.drained:
	case <-time.After(2 * time.Second):
		t.Fatal("queue was not drained")
	}
	cancel()
	<-done

	client.mu.Lock()
	defer client.mu.Unlock()
	assert.ElementsMatch(t, []string{"ok", "invalid", "garbage", "empty"}, client.deleted)

	require.Len(t, ledger.accesses, 3)
	assert.Equal(t, domain.DirectionOut, ledger.accesses[2].Direction)
}

func TestTrafficConsumer_KeepsWarningsAsHandled(t *testing.T) {
	ledger := &fakeLedger{result: func(domain.VehicleAccess) domain.PersistenceResult {
		return domain.CompletedWithWarnings("id", service.ErrAggregationConflict)
	}}
	consumer := NewTrafficConsumer(&fakeSQS{}, "q", ledger, zap.NewNop())

	assert.True(t, consumer.handle(context.Background(), msg("h", `{"facilityId":2,"vehicleId":"AB123CD","direction":1}`)))
}

func TestTrafficConsumer_RedeliveryCountsOnce(t *testing.T) {
	ctx := context.Background()
	log := zap.NewNop()
	store := memory.NewAccessStore()
	aggregator := service.NewStatusAggregator(store, service.DefaultAggregatorConfig(), nil, log)
	ledger := service.NewEmbeddedLedger(store, aggregator, service.EmbeddedLedgerOptions{}, log)
	require.NoError(t, ledger.Initialize(ctx))
	consumer := NewTrafficConsumer(&fakeSQS{}, "q", ledger, log)

	// Same message twice: the first delete failed or the visibility timeout ran out.
	delivery := msg("r-1", `{"facilityId":5,"vehicleId":"AB123CD","direction":1}`)
	assert.True(t, consumer.handle(ctx, delivery))
	redelivery := delivery
	redelivery.ReceiptHandle = aws.String("r-2")
	assert.True(t, consumer.handle(ctx, redelivery))

	status, err := ledger.GetParkingStatus(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, status.BusySpaces)

	last, err := ledger.GetLastVehicleAccess(ctx, 5, "AB123CD")
	require.NoError(t, err)
	assert.Equal(t, "msg-r-1", last.ID)
}

func TestTrafficConsumer_KeepsExplicitAccessID(t *testing.T) {
	ledger := &fakeLedger{}
	consumer := NewTrafficConsumer(&fakeSQS{}, "q", ledger, zap.NewNop())

	require.True(t, consumer.handle(context.Background(), msg("h", `{"id":"gate-1-0001","facilityId":5,"vehicleId":"AB123CD","direction":1}`)))
	require.Len(t, ledger.accesses, 1)
	assert.Equal(t, "gate-1-0001", ledger.accesses[0].ID)
}

func TestTrafficConsumer_DeletesReusedIDs(t *testing.T) {
	ledger := &fakeLedger{result: func(domain.VehicleAccess) domain.PersistenceResult {
		return domain.Failed(repository.ErrDuplicateEntry)
	}}
	consumer := NewTrafficConsumer(&fakeSQS{}, "q", ledger, zap.NewNop())

	assert.True(t, consumer.handle(context.Background(), msg("h", `{"facilityId":5,"vehicleId":"AB123CD","direction":1}`)))
}
