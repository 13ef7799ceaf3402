package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/cradoe/songbid/internal/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) ProduceMessage(topic, key string, message []byte) error {
	args := m.Called(topic, key, message)
	return args.Error(0)
}

func TestNotify_PublishesKeyedByUser(t *testing.T) {
	publisher := new(MockPublisher)
	publisher.On("ProduceMessage", Topic, "u1", mock.Anything).Return(nil)

	d := NewDispatcher(publisher, mocks.NewLogger())
	d.Notify(context.Background(), Event{Type: EventPaymentCompleted, UserID: "u1", EntityID: "p1", Amount: decimal.NewFromInt(50)})

	publisher.AssertExpectations(t)

	var got Event
	raw := publisher.Calls[0].Arguments.Get(2).([]byte)
	require.NoError(t, json.Unmarshal(raw, &got))
	require.Equal(t, EventPaymentCompleted, got.Type)
	require.True(t, got.Amount.Equal(decimal.NewFromInt(50)))
	require.False(t, got.OccurredAt.IsZero())
}

func TestNotify_SwallowsPublishErrors(t *testing.T) {
	publisher := new(MockPublisher)
	publisher.On("ProduceMessage", Topic, "u1", mock.Anything).Return(errors.New("broker down"))

	d := NewDispatcher(publisher, mocks.NewLogger())

	require.NotPanics(t, func() {
		d.Notify(context.Background(), Event{Type: EventPaymentFailed, UserID: "u1"})
	})
}
