package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapModelRetriesGenerate(t *testing.T) {
	m := &scriptedModel{steps: []step{
		{err: errors.New("503")},
		{err: errors.New("503")},
		textStep("ok"),
	}}
	wrapped := WrapModel(m, RetryConfig{MaxAttempts: 3})

	msg, err := wrapped.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, "ok", msg.Content)
	assert.Equal(t, 3, m.callCount())
}

func TestWrapModelGivesUpAfterMaxAttempts(t *testing.T) {
	m := &scriptedModel{steps: []step{
		{err: errors.New("first")},
		{err: errors.New("second")},
	}}
	wrapped := WrapModel(m, RetryConfig{MaxAttempts: 2})

	_, err := wrapped.Stream(context.Background(), nil)
	assert.EqualError(t, err, "second")
	assert.Equal(t, 2, m.callCount())
}

func TestWrapModelShouldRetry(t *testing.T) {
	permanent := errors.New("invalid api key")
	m := &scriptedModel{steps: []step{{err: permanent}, textStep("unused")}}
	wrapped := WrapModel(m, RetryConfig{
		MaxAttempts: 5,
		ShouldRetry: func(err error) bool { return !errors.Is(err, permanent) },
	})

	_, err := wrapped.Stream(context.Background(), nil)
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, m.callCount())
}

func TestWrapModelStopsOnCancel(t *testing.T) {
	m := &scriptedModel{steps: []step{textStep("unused")}}
	wrapped := WrapModel(m, RetryConfig{MaxAttempts: 3})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := wrapped.Stream(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, m.callCount())

	m = &scriptedModel{steps: []step{{err: context.Canceled}, textStep("unused")}}
	wrapped = WrapModel(m, RetryConfig{MaxAttempts: 3})
	_, err = wrapped.Generate(context.Background(), nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, m.callCount())
}

func TestWrapModelKeepsRetryAcrossWithTools(t *testing.T) {
	m := &scriptedModel{steps: []step{{err: errors.New("flaky")}, textStep("ok")}}
	wrapped := WrapModel(WrapModel(m, RetryConfig{MaxAttempts: 1}), RetryConfig{MaxAttempts: 2})

	bound, err := wrapped.WithTools([]*schema.ToolInfo{{Name: "echo"}})
	require.NoError(t, err)
	_, err = bound.Generate(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, m.callCount())
	assert.Nil(t, WrapModel(nil, RetryConfig{}))
}
