package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, recipient string, data any, patterns ...string) error {
	args := m.Called(ctx, recipient, data, patterns)
	return args.Error(0)
}
