// Package storetest holds the behavioural suite every store.TicketStore
// implementation must pass.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supportdesk/internal/model"
	"supportdesk/internal/store"
)

// Factory builds an empty store whose clock is now.
type Factory func(t *testing.T, now func() time.Time) store.TicketStore

// FrozenClock always reports the same instant, so every ordering guarantee
// has to come from the store itself.
func FrozenClock() func() time.Time {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time { return base }
}

func Run(t *testing.T, newStore Factory) {
	t.Run("CreateThenGet", func(t *testing.T) { testCreateThenGet(t, newStore) })
	t.Run("CreateRequiresName", func(t *testing.T) { testCreateRequiresName(t, newStore) })
	t.Run("AppendOrdering", func(t *testing.T) { testAppendOrdering(t, newStore) })
	t.Run("AppendValidation", func(t *testing.T) { testAppendValidation(t, newStore) })
	t.Run("StatusRoundTrip", func(t *testing.T) { testStatusRoundTrip(t, newStore) })
	t.Run("UnknownTicket", func(t *testing.T) { testUnknownTicket(t, newStore) })
	t.Run("ListOrdering", func(t *testing.T) { testListOrdering(t, newStore) })
	t.Run("ConcurrentAppends", func(t *testing.T) { testConcurrentAppends(t, newStore) })
	t.Run("Scenario", func(t *testing.T) { testScenario(t, newStore) })
}

func testCreateThenGet(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, FrozenClock())

	ticket, err := s.CreateTicket(ctx, "Jordan")
	require.NoError(t, err)
	require.NotEmpty(t, ticket.ID)
	assert.Equal(t, model.StatusActive, ticket.Status)

	conv, err := s.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, conv.ID)
	assert.Equal(t, "Jordan", conv.ClientName)
	assert.Equal(t, model.StatusActive, conv.Status)
	assert.Empty(t, conv.Messages)
	assert.False(t, conv.UpdatedAt.Before(conv.CreatedAt))
}

func testCreateRequiresName(t *testing.T, newStore Factory) {
	s := newStore(t, FrozenClock())
	_, err := s.CreateTicket(context.Background(), "  ")
	assert.ErrorIs(t, err, store.ErrValidation)
}

func testAppendOrdering(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, FrozenClock())

	ticket, err := s.CreateTicket(ctx, "Sam")
	require.NoError(t, err)

	var sent []model.Message
	for i, sender := range []model.Sender{model.SenderUser, model.SenderSupport, model.SenderUser} {
		msg, err := s.AppendMessage(ctx, ticket.ID, fmt.Sprintf("m%d", i+1), sender)
		require.NoError(t, err)
		assert.Equal(t, sender, msg.Sender)
		sent = append(sent, msg)
	}

	conv, err := s.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 3)
	for i, m := range conv.Messages {
		assert.Equal(t, sent[i].ID, m.ID)
		assert.Equal(t, fmt.Sprintf("m%d", i+1), m.Content)
		if i > 0 {
			assert.True(t, m.CreatedAt.After(conv.Messages[i-1].CreatedAt), "createdAt must increase")
		}
	}
	assert.False(t, conv.UpdatedAt.Before(conv.Messages[2].CreatedAt))
	assert.True(t, conv.UpdatedAt.After(ticket.UpdatedAt))
}

func testAppendValidation(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, FrozenClock())
	ticket, err := s.CreateTicket(ctx, "Sam")
	require.NoError(t, err)

	_, err = s.AppendMessage(ctx, ticket.ID, "   ", model.SenderUser)
	assert.ErrorIs(t, err, store.ErrValidation)
	_, err = s.AppendMessage(ctx, ticket.ID, "hi", model.Sender("robot"))
	assert.ErrorIs(t, err, store.ErrValidation)

	conv, err := s.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Empty(t, conv.Messages)
	assert.Equal(t, ticket.UpdatedAt.UnixMilli(), conv.UpdatedAt.UnixMilli())
}

func testStatusRoundTrip(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, FrozenClock())
	ticket, err := s.CreateTicket(ctx, "Sam")
	require.NoError(t, err)

	require.NoError(t, s.SetStatus(ctx, ticket.ID, model.StatusResolved))
	resolved, err := s.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusResolved, resolved.Status)
	assert.True(t, resolved.UpdatedAt.After(ticket.UpdatedAt))

	require.NoError(t, s.SetStatus(ctx, ticket.ID, model.StatusActive))
	reopened, err := s.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, reopened.Status)
	assert.True(t, reopened.UpdatedAt.After(resolved.UpdatedAt))

	assert.ErrorIs(t, s.SetStatus(ctx, ticket.ID, model.Status("closed")), store.ErrValidation)
}

func testUnknownTicket(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, FrozenClock())

	_, err := s.GetTicket(ctx, "NOPE0000")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.AppendMessage(ctx, "NOPE0000", "hello", model.SenderUser)
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.ErrorIs(t, s.SetStatus(ctx, "NOPE0000", model.StatusResolved), store.ErrNotFound)

	all, err := s.ListTickets(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func testListOrdering(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, FrozenClock())

	first, err := s.CreateTicket(ctx, "First")
	require.NoError(t, err)
	second, err := s.CreateTicket(ctx, "Second")
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, first.ID, "bump", model.SenderUser)
	require.NoError(t, err)

	all, err := s.ListTickets(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, first.ID, all[0].ID)
	assert.Len(t, all[0].Messages, 1)
	assert.Equal(t, second.ID, all[1].ID)
	assert.Empty(t, all[1].Messages)
}

func testConcurrentAppends(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, FrozenClock())
	ticket, err := s.CreateTicket(ctx, "Busy")
	require.NoError(t, err)
	other, err := s.CreateTicket(ctx, "Other")
	require.NoError(t, err)

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, 2*n)
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := s.AppendMessage(ctx, ticket.ID, fmt.Sprintf("msg %d", i), model.SenderUser)
			errs <- err
		}(i)
		go func(i int) {
			defer wg.Done()
			status := model.StatusResolved
			if i%2 == 0 {
				status = model.StatusActive
			}
			errs <- s.SetStatus(ctx, other.ID, status)
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	conv, err := s.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, conv.Messages, n)
	for i := 1; i < n; i++ {
		assert.True(t, conv.Messages[i].CreatedAt.After(conv.Messages[i-1].CreatedAt))
	}
	assert.Equal(t, conv.Messages[n-1].CreatedAt.UnixMilli(), conv.UpdatedAt.UnixMilli())
}

func testScenario(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, FrozenClock())

	ticket, err := s.CreateTicket(ctx, "Jordan")
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, ticket.Status)

	m1, err := s.AppendMessage(ctx, ticket.ID, "Hello", model.SenderUser)
	require.NoError(t, err)
	afterHello, err := s.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.True(t, afterHello.UpdatedAt.After(ticket.UpdatedAt))

	all, err := s.ListTickets(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, ticket.ID, all[0].ID)
	assert.Len(t, all[0].Messages, 1)

	m2, err := s.AppendMessage(ctx, ticket.ID, "Hi, how can I help?", model.SenderSupport)
	require.NoError(t, err)
	assert.Equal(t, model.SenderSupport, m2.Sender)

	require.NoError(t, s.SetStatus(ctx, ticket.ID, model.StatusResolved))
	conv, err := s.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusResolved, conv.Status)

	require.NoError(t, s.SetStatus(ctx, ticket.ID, model.StatusActive))
	conv, err = s.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, conv.Status)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, m1.ID, conv.Messages[0].ID)
	assert.Equal(t, m2.ID, conv.Messages[1].ID)
	assert.Equal(t, model.SenderUser, conv.Messages[0].Sender)
	assert.Equal(t, model.SenderSupport, conv.Messages[1].Sender)
}
