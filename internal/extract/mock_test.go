package extract

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/gri-cli/internal/model"
	"github.com/sells-group/gri-cli/pkg/anthropic"
	"github.com/sells-group/gri-cli/pkg/gemini"
)

type mockAnthropic struct{ mock.Mock }

func (m *mockAnthropic) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

type mockGemini struct{ mock.Mock }

func (m *mockGemini) GenerateJSON(ctx context.Context, req gemini.Request) (*gemini.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gemini.Response), args.Error(1)
}

type mockClient struct{ mock.Mock }

func (m *mockClient) Extract(ctx context.Context, chunk model.Chunk, fields []model.FieldDescriptor) (*Response, error) {
	args := m.Called(ctx, chunk, fields)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Response), args.Error(1)
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		ID:      "msg_1",
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
		Usage:   anthropic.TokenUsage{InputTokens: 100, OutputTokens: 20},
	}
}
