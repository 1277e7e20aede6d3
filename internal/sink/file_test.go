package sink

import (
	"context"
	"testing"

	"github.com/opencode-ai/agentcore/internal/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordMessageThenLoadRoundTripsInOrder(t *testing.T) {
	s, err := NewFileSink(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.RecordMessage(ctx, "session-1", message.User("hi")))
	require.NoError(t, s.RecordMessage(ctx, "session-1", message.Assistant("hello back")))

	msgs, err := s.Load(ctx, "session-1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.Equal(t, "hello back", msgs[1].Content)
}

func TestLoadUnknownSessionReturnsEmptyNoError(t *testing.T) {
	s, err := NewFileSink(t.TempDir())
	require.NoError(t, err)
	msgs, err := s.Load(context.Background(), "never-written")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestListSessionsOrdersMostRecentFirstAndRespectsLimit(t *testing.T) {
	s, err := NewFileSink(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.RecordMessage(ctx, "older", message.User("first task")))
	require.NoError(t, s.RecordMessage(ctx, "newer", message.User("second task")))

	summaries, err := s.ListSessions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "newer", summaries[0].ID)
	assert.Equal(t, "second task", summaries[0].Summary)
}

func TestListSessionsOnEmptyDirReturnsEmpty(t *testing.T) {
	s, err := NewFileSink(t.TempDir())
	require.NoError(t, err)
	summaries, err := s.ListSessions(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

func TestSummaryTruncatesLongUserMessageTo80Chars(t *testing.T) {
	s, err := NewFileSink(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	long := ""
	for i := 0; i < 200; i++ {
		long += "x"
	}
	require.NoError(t, s.RecordMessage(ctx, "long-session", message.User(long)))

	summaries, err := s.ListSessions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, 81, len([]rune(summaries[0].Summary))) // 80 chars + ellipsis marker
}
