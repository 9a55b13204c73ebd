package mocks

import (
	"context"

	"github.com/dukex/bizflow/pkg/protocol"
	"github.com/stretchr/testify/mock"
)

// MockEmailSender is a mock implementation of protocol.EmailSender interface.
type MockEmailSender struct {
	mock.Mock
}

func (m *MockEmailSender) Send(ctx context.Context, msg protocol.EmailMessage) (protocol.Receipt, error) {
	args := m.Called(ctx, msg)

	return args.Get(0).(protocol.Receipt), args.Error(1)
}

// MockWebhookClient is a mock implementation of protocol.WebhookClient interface.
type MockWebhookClient struct {
	mock.Mock
}

func (m *MockWebhookClient) Send(ctx context.Context, req protocol.WebhookRequest) (protocol.WebhookResponse, error) {
	args := m.Called(ctx, req)

	return args.Get(0).(protocol.WebhookResponse), args.Error(1)
}

// MockNotificationCreator is a mock implementation of protocol.NotificationCreator interface.
type MockNotificationCreator struct {
	mock.Mock
}

func (m *MockNotificationCreator) Send(ctx context.Context, n protocol.Notification) (protocol.Receipt, error) {
	args := m.Called(ctx, n)

	return args.Get(0).(protocol.Receipt), args.Error(1)
}

// MockAIAnalyzer is a mock implementation of protocol.AIAnalyzer interface.
type MockAIAnalyzer struct {
	mock.Mock
}

func (m *MockAIAnalyzer) Analyze(ctx context.Context, req protocol.AnalysisRequest) (protocol.AnalysisResult, error) {
	args := m.Called(ctx, req)

	return args.Get(0).(protocol.AnalysisResult), args.Error(1)
}

// MockActionProvider is a mock implementation of protocol.ActionProvider interface.
type MockActionProvider struct {
	mock.Mock
}

func (m *MockActionProvider) CreateAction(ctx context.Context, actionType string, config map[string]any) (protocol.Action, error) {
	args := m.Called(ctx, actionType, config)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(protocol.Action), args.Error(1)
}

var (
	_ protocol.EmailSender         = (*MockEmailSender)(nil)
	_ protocol.WebhookClient       = (*MockWebhookClient)(nil)
	_ protocol.NotificationCreator = (*MockNotificationCreator)(nil)
	_ protocol.AIAnalyzer          = (*MockAIAnalyzer)(nil)
	_ protocol.ActionProvider      = (*MockActionProvider)(nil)
)
