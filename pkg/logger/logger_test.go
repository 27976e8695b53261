package logger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChildLoggerSharesCollector(t *testing.T) {
	pub := &capturePublisher{}
	root := Nop()
	root.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 1, Topic: "logs", Publisher: pub})
	defer root.RemoveCollector()

	child := root.With(String("env", "test"))
	child.Error("refresh failed", Int("rows", 3), Duration("took", 1500*time.Millisecond))
	require.Eventually(t, func() bool { return pub.count() == 1 }, time.Second, 5*time.Millisecond)

	pub.mu.Lock()
	defer pub.mu.Unlock()
	entry := pub.batches[0][0]
	assert.Equal(t, "error", entry.Level)
	assert.Equal(t, 3, entry.Fields["rows"])
	assert.Equal(t, int64(1500), entry.Fields["took"])
	assert.Contains(t, entry.Caller, "logger_test.go:")
}

func TestInfoIsNotCollected(t *testing.T) {
	pub := &capturePublisher{}
	l := Nop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 1, Topic: "logs", Publisher: pub})
	l.Info("fine", Bool("ok", true), Strings("symbols", []string{"A", "B"}))
	l.RemoveCollector()
	assert.Equal(t, 0, pub.count())
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(&Config{Level: "loud", Output: "stdout"})
	assert.Error(t, err)
}
