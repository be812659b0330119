package store

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supportdesk/internal/model"
)

func TestNextStamp_StrictlyIncreases(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, base.Add(time.Millisecond), NextStamp(base, base))
	assert.Equal(t, base.Add(time.Millisecond), NextStamp(base.Add(-time.Hour), base))
	assert.Equal(t, base.Add(time.Second), NextStamp(base.Add(time.Second), base))
	assert.Equal(t, base, NextStamp(base.Add(300*time.Microsecond), time.Time{}))
}

func TestPartitions_SerializesSameKey(t *testing.T) {
	p := NewPartitions()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := p.Lock("K")
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
	assert.Empty(t, p.locks)
}

func TestPartitions_DifferentKeysDoNotBlock(t *testing.T) {
	p := NewPartitions()
	releaseA := p.Lock("A")
	defer releaseA()

	done := make(chan struct{})
	go func() {
		release := p.Lock("B")
		release()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on B blocked behind A")
	}
}

func TestValidation(t *testing.T) {
	_, err := NormalizeClientName("   ")
	require.True(t, errors.Is(err, ErrValidation))

	name, err := NormalizeClientName(" Jordan ")
	require.NoError(t, err)
	assert.Equal(t, "Jordan", name)

	_, err = NormalizeMessage("", model.SenderUser)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = NormalizeMessage("hi", model.Sender("bot"))
	assert.ErrorIs(t, err, ErrValidation)
	assert.ErrorIs(t, ValidateStatus(model.Status("closed")), ErrValidation)
	assert.NoError(t, ValidateStatus(model.StatusResolved))
}

func TestNewTicketID(t *testing.T) {
	id := NewTicketID()
	assert.Len(t, id, 8)
	assert.Regexp(t, `^[0-9A-F]{8}$`, id)
	assert.NotEqual(t, NewMessageID(), NewMessageID())
}

func TestSortMessages_TieBrokenBySeq(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	msgs := []model.Message{
		{ID: "c", CreatedAt: ts.Add(time.Second), Seq: 1},
		{ID: "b", CreatedAt: ts, Seq: 3},
		{ID: "a", CreatedAt: ts, Seq: 2},
	}
	SortMessages(msgs)
	assert.Equal(t, []string{"a", "b", "c"}, []string{msgs[0].ID, msgs[1].ID, msgs[2].ID})
}
