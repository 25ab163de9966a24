package debounce_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/monoco-dev/fabric/internal/clock"
	"github.com/monoco-dev/fabric/pkg/courier/debounce"
	"github.com/monoco-dev/fabric/pkg/mailbox"
)

func TestHandler_AddDoesNotFlushUntilIdle(t *testing.T) {
	fake := clock.NewFake(time.Now())
	var flushed [][]mailbox.Message

	h := debounce.NewHandler(debounce.Config{Window: 5 * time.Second, MaxWait: 30 * time.Second},
		func(m []mailbox.Message) { flushed = append(flushed, m) }, fake)

	batch := h.Add(mailbox.Message{ID: "1", SessionID: "s1"})
	require.Nil(t, batch)
	require.Equal(t, 1, h.PendingCount())

	fake.Advance(time.Second)
	batch = h.Add(mailbox.Message{ID: "2", SessionID: "s1"})
	require.Nil(t, batch)
	require.Equal(t, 2, h.PendingCount())
}

func TestHandler_FlushesOnIdleWindowExceeded(t *testing.T) {
	fake := clock.NewFake(time.Now())
	var flushed [][]mailbox.Message

	h := debounce.NewHandler(debounce.Config{Window: 5 * time.Second, MaxWait: 30 * time.Second},
		func(m []mailbox.Message) { flushed = append(flushed, m) }, fake)

	h.Add(mailbox.Message{ID: "1", SessionID: "s1"})

	fake.Advance(6 * time.Second)
	batch := h.Add(mailbox.Message{ID: "2", SessionID: "s1"})

	require.Len(t, batch, 2)
	require.Len(t, flushed, 1)
	require.Equal(t, 0, h.PendingCount())
}

func TestHandler_GroupsBySessionKey(t *testing.T) {
	fake := clock.NewFake(time.Now())
	h := debounce.NewHandler(debounce.DefaultConfig, func([]mailbox.Message) {}, fake)

	h.Add(mailbox.Message{ID: "1", SessionID: "s1"})
	h.Add(mailbox.Message{ID: "2", SessionID: "s2"})

	require.ElementsMatch(t, []string{"s1:_", "s2:_"}, h.BufferKeys())
}

func TestHandler_FlushAllReturnsEveryBuffer(t *testing.T) {
	fake := clock.NewFake(time.Now())
	h := debounce.NewHandler(debounce.DefaultConfig, func([]mailbox.Message) {}, fake)

	h.Add(mailbox.Message{ID: "1", SessionID: "s1"})
	h.Add(mailbox.Message{ID: "2", SessionID: "s2"})

	results := h.FlushAll()
	require.Len(t, results, 2)
	require.Equal(t, 0, h.PendingCount())
}

func TestHandler_ShutdownBypassesBuffering(t *testing.T) {
	fake := clock.NewFake(time.Now())
	h := debounce.NewHandler(debounce.DefaultConfig, func([]mailbox.Message) {}, fake)

	h.Shutdown()

	batch := h.Add(mailbox.Message{ID: "1", SessionID: "s1"})
	require.Len(t, batch, 1)
	require.Equal(t, 0, h.PendingCount())
}
