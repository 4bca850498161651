package events

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_BroadcastMatchesTeamFilter(t *testing.T) {
	h := NewHub(zerolog.Nop())

	all := h.add("")
	teamA := h.add("team-a")
	teamB := h.add("team-b")
	defer h.remove(all)
	defer h.remove(teamA)
	defer h.remove(teamB)

	h.Broadcast(Event{Type: "incident.created", TeamID: "team-a", IncidentID: "inc-1"})

	select {
	case ev := <-all.ch:
		assert.Equal(t, "inc-1", ev.IncidentID)
	default:
		t.Fatal("unfiltered subscriber should receive the event")
	}
	select {
	case ev := <-teamA.ch:
		assert.Equal(t, "inc-1", ev.IncidentID)
		assert.False(t, ev.At.IsZero())
	default:
		t.Fatal("team-a subscriber should receive the event")
	}
	select {
	case <-teamB.ch:
		t.Fatal("team-b subscriber must not receive team-a events")
	default:
	}
}

func TestHub_BroadcastSkipsFullBuffers(t *testing.T) {
	h := NewHub(zerolog.Nop())
	sub := h.add("")
	defer h.remove(sub)

	for i := 0; i < cap(sub.ch)+10; i++ {
		h.Broadcast(Event{Type: "incident.updated", At: time.Now()})
	}
	require.Len(t, sub.ch, cap(sub.ch), "overflow must be dropped, not block")
	assert.Equal(t, 1, h.SubscriberCount())
}
