package memory_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brainrun/brains/brain/signal"
	"github.com/brainrun/brains/brain/signalstore/memory"
)

// TestPriority_KillBeforePause checks that with PAUSE and KILL both queued,
// Take returns KILL before PAUSE, the order that makes a step boundary emit
// CANCELLED rather than PAUSED.
func TestPriority_KillBeforePause(t *testing.T) {
	p := memory.New()
	p.Queue(signal.Signal{Kind: signal.KindPause})
	p.Queue(signal.Signal{Kind: signal.KindKill})

	s, ok := p.Take(signal.Of(signal.KindKill, signal.KindPause), true)
	require.True(t, ok)
	require.Equal(t, signal.KindKill, s.Kind)

	s, ok = p.Take(signal.Of(signal.KindKill, signal.KindPause), true)
	require.True(t, ok)
	require.Equal(t, signal.KindPause, s.Kind)

	_, ok = p.Take(signal.Of(signal.KindKill, signal.KindPause), true)
	require.False(t, ok)
}

func TestFilter_IgnoresNonMatchingKinds(t *testing.T) {
	p := memory.New()
	p.Queue(signal.Signal{Kind: signal.KindUserMessage, Content: "hurry up!"})

	_, ok := p.Take(signal.Of(signal.KindKill, signal.KindPause), true)
	require.False(t, ok)

	s, ok := p.Take(signal.Of(signal.KindUserMessage), true)
	require.True(t, ok)
	require.Equal(t, "hurry up!", s.Content)
}

func TestWebhookResumeDrainsOnlyWebhookResponse(t *testing.T) {
	// During webhook resume the engine drains only WEBHOOK_RESPONSE signals;
	// USER_MESSAGE signals queued before resume must remain queued for the
	// agent loop.
	p := memory.New()
	p.Queue(signal.Signal{Kind: signal.KindUserMessage, Content: "still here"})
	p.Queue(signal.Signal{Kind: signal.KindWebhookResponse, Identifier: "t-1"})

	s, ok := p.Take(signal.Of(signal.KindWebhookResponse), true)
	require.True(t, ok)
	require.Equal(t, "t-1", s.Identifier)

	s, ok = p.Take(signal.Of(signal.KindUserMessage), true)
	require.True(t, ok)
	require.Equal(t, "still here", s.Content)
}
