package agent

import (
	"context"
	"errors"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// RetryConfig retries failed model calls. Only the opening of a stream is
// retried; an error after the first chunk belongs to the caller.
type RetryConfig struct {
	MaxAttempts int
	ShouldRetry func(error) bool
}

// WrapModel adds retries to every Generate and Stream call of m.
func WrapModel(m model.ToolCallingChatModel, cfg RetryConfig) model.ToolCallingChatModel {
	if m == nil {
		return nil
	}
	if w, ok := m.(*retryModel); ok {
		return &retryModel{next: w.next, cfg: cfg}
	}
	return &retryModel{next: m, cfg: cfg}
}

type retryModel struct {
	next model.ToolCallingChatModel
	cfg  RetryConfig
}

func (w *retryModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	attempts := normalizedAttempts(w.cfg.MaxAttempts)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		msg, err := w.next.Generate(ctx, input, opts...)
		if err == nil {
			return msg, nil
		}
		lastErr = err
		if attempt == attempts || !shouldRetry(ctx, w.cfg, err) {
			break
		}
	}
	return nil, lastErr
}

func (w *retryModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	attempts := normalizedAttempts(w.cfg.MaxAttempts)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		sr, err := w.next.Stream(ctx, input, opts...)
		if err == nil {
			return sr, nil
		}
		lastErr = err
		if attempt == attempts || !shouldRetry(ctx, w.cfg, err) {
			break
		}
	}
	return nil, lastErr
}

func (w *retryModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	next, err := w.next.WithTools(tools)
	if err != nil {
		return nil, err
	}
	return &retryModel{next: next, cfg: w.cfg}, nil
}

func normalizedAttempts(maxAttempts int) int {
	if maxAttempts < 1 {
		return 1
	}
	return maxAttempts
}

func shouldRetry(ctx context.Context, cfg RetryConfig, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if cfg.ShouldRetry == nil {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	return cfg.ShouldRetry(err)
}
