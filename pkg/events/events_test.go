package events

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrokerDeliversToSubscribers(t *testing.T) {
	b := NewBroker(nil)
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	b.Publish(&Notification{
		Kind:     KindAudit,
		UUID:     "audit-uuid",
		OldState: "PENDING",
		NewState: "ONGOING",
	})

	select {
	case n := <-sub:
		assert.Equal(t, KindAudit, n.Kind)
		assert.Equal(t, "ONGOING", n.NewState)
		assert.False(t, n.Timestamp.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("notification not delivered")
	}
}

func TestJournalAppendAndReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := OpenJournal(path)
	require.NoError(t, err)
	defer j.Close()

	for i, state := range []string{"PENDING", "ONGOING", "SUCCEEDED"} {
		require.NoError(t, j.Append(&Notification{
			Kind:     KindActionPlan,
			UUID:     "plan-uuid",
			NewState: state,
			Payload:  map[string]string{"step": string(rune('a' + i))},
		}))
	}

	all, last, err := j.ReplayFrom(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, uint64(3), last)
	assert.Equal(t, "PENDING", all[0].NewState)
	assert.Equal(t, "SUCCEEDED", all[2].NewState)

	tail, last, err := j.ReplayFrom(2)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, uint64(3), last)
	assert.Equal(t, "SUCCEEDED", tail[0].NewState)
}

func TestBrokerJournalsPublishedNotifications(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := OpenJournal(path)
	require.NoError(t, err)
	defer j.Close()

	b := NewBroker(j)
	b.Start()
	defer b.Stop()

	b.Publish(&Notification{Kind: KindService, UUID: "svc", NewState: "FAILED"})

	all, _, err := j.ReplayFrom(0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, KindService, all[0].Kind)
}
