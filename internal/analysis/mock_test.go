package analysis

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/chem-report/internal/evidence"
	"github.com/sells-group/chem-report/pkg/anthropic"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

type mockEngine struct {
	mock.Mock
}

func (m *mockEngine) Generate(ctx context.Context, payload *evidence.Payload, reasoningBudget int64) (*Generation, error) {
	args := m.Called(ctx, payload, reasoningBudget)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Generation), args.Error(1)
}
