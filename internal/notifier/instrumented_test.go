package notifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type closingSink struct {
	SinkFunc
	closed []string
}

func (c *closingSink) CloseSession(id string) {
	c.closed = append(c.closed, id)
}

func TestInstrumentedSinkForwards(t *testing.T) {
	var got []string

	inner := &closingSink{SinkFunc: func(_ context.Context, id, text string) error {
		got = append(got, id+":"+text)

		return nil
	}}

	s := NewInstrumentedSink("test", inner, nil)

	assert.NoError(t, s.Emit(context.Background(), "s1", "hello"))
	s.CloseSession("s1")

	assert.Equal(t, []string{"s1:hello"}, got)
	assert.Equal(t, []string{"s1"}, inner.closed)
}

func TestInstrumentedSinkKeepsErrorTypes(t *testing.T) {
	s := NewInstrumentedSink("test", SinkFunc(func(context.Context, string, string) error {
		return &RateLimitedError{Sink: "test", RetryAfter: 3 * time.Second}
	}), nil)

	wait, ok := RetryAfter(s.Emit(context.Background(), "s1", "x"))
	assert.True(t, ok)
	assert.Equal(t, 3*time.Second, wait)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, "ok", classify(nil))
	assert.Equal(t, "rate_limited", classify(&RateLimitedError{RetryAfter: time.Second}))
	assert.Equal(t, "error", classify(&PermanentError{Sink: "x", Reason: "bad"}))
	assert.Equal(t, "error", classify(errors.New("boom")))
}
