package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLogRecord_IsValid(t *testing.T) {
	t.Run("valid record", func(t *testing.T) {
		rec := LogRecord{WorkerID: "wkr-1", Message: "hello", LoggedAt: time.Now().UnixMilli()}
		assert.NoError(t, rec.IsValid())
	})

	t.Run("missing worker id", func(t *testing.T) {
		rec := LogRecord{Message: "hello", LoggedAt: time.Now().UnixMilli()}
		assert.Error(t, rec.IsValid())
	})

	t.Run("missing message", func(t *testing.T) {
		rec := LogRecord{WorkerID: "wkr-1", LoggedAt: time.Now().UnixMilli()}
		assert.Error(t, rec.IsValid())
	})

	t.Run("missing timestamp", func(t *testing.T) {
		rec := LogRecord{WorkerID: "wkr-1", Message: "hello"}
		assert.Error(t, rec.IsValid())
	})
}

func TestLogRecord_Age(t *testing.T) {
	rec := LogRecord{LoggedAt: time.Now().Add(-5 * time.Second).UnixMilli()}
	assert.GreaterOrEqual(t, rec.Age(), 4*time.Second)

	zero := LogRecord{}
	assert.Equal(t, time.Duration(0), zero.Age())
}

func TestStrayReplyEvent_IsValid(t *testing.T) {
	t.Run("valid event", func(t *testing.T) {
		event := StrayReplyEvent{RequestID: "req-1", ReceivedAt: time.Now().UnixMilli()}
		assert.NoError(t, event.IsValid())
	})

	t.Run("missing request id", func(t *testing.T) {
		event := StrayReplyEvent{ReceivedAt: time.Now().UnixMilli()}
		assert.Error(t, event.IsValid())
	})

	t.Run("missing received at", func(t *testing.T) {
		event := StrayReplyEvent{RequestID: "req-1"}
		assert.Error(t, event.IsValid())
	})
}
