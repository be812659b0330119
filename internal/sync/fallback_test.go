package sync

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supportdesk/internal/auth"
	"supportdesk/internal/client"
	"supportdesk/internal/model"
	"supportdesk/internal/store"
	"supportdesk/internal/store/local"
	"supportdesk/internal/store/storetest"
)

// stubStore fails every call with err and counts how often it was asked.
type stubStore struct {
	err   error
	calls atomic.Int32
}

func (s *stubStore) CreateTicket(context.Context, string) (model.Ticket, error) {
	s.calls.Add(1)
	return model.Ticket{}, s.err
}

func (s *stubStore) GetTicket(context.Context, string) (model.Conversation, error) {
	s.calls.Add(1)
	return model.Conversation{}, s.err
}

func (s *stubStore) ListTickets(context.Context) ([]model.Conversation, error) {
	s.calls.Add(1)
	return nil, s.err
}

func (s *stubStore) AppendMessage(context.Context, string, string, model.Sender) (model.Message, error) {
	s.calls.Add(1)
	return model.Message{}, s.err
}

func (s *stubStore) SetStatus(context.Context, string, model.Status) error {
	s.calls.Add(1)
	return s.err
}

func unavailable() error {
	return fmt.Errorf("%w: dial tcp: connection refused", client.ErrUnavailable)
}

func TestFallbackContractLocalOnly(t *testing.T) {
	storetest.Run(t, func(t *testing.T, now func() time.Time) store.TicketStore {
		return &FallbackStore{Local: local.Open("", local.Options{Now: now})}
	})
}

func TestFallbackContractPrimaryDown(t *testing.T) {
	storetest.Run(t, func(t *testing.T, now func() time.Time) store.TicketStore {
		return &FallbackStore{
			Primary: &stubStore{err: unavailable()},
			Local:   local.Open("", local.Options{Now: now}),
		}
	})
}

func TestFallbackSurfacesOtherErrors(t *testing.T) {
	ctx := context.Background()

	for _, primaryErr := range []error{store.ErrValidation, auth.ErrInvalidToken, client.ErrNoSession} {
		primary := &stubStore{err: primaryErr}
		loc := &stubStore{}
		fs := &FallbackStore{Primary: primary, Local: loc}

		_, err := fs.GetTicket(ctx, "ABC")
		assert.ErrorIs(t, err, primaryErr)
		_, err = fs.AppendMessage(ctx, "ABC", "hi", model.SenderUser)
		assert.ErrorIs(t, err, primaryErr)
		assert.ErrorIs(t, fs.SetStatus(ctx, "ABC", model.StatusResolved), primaryErr)

		assert.EqualValues(t, 3, primary.calls.Load())
		assert.Zero(t, loc.calls.Load(), "local must not be used for %v", primaryErr)
	}
}

func TestFallbackReadsOwnWrites(t *testing.T) {
	ctx := context.Background()
	loc := local.Open("", local.Options{})
	fs := &FallbackStore{Primary: &stubStore{err: unavailable()}, Local: loc}

	ticket, err := fs.CreateTicket(ctx, "Jordan")
	require.NoError(t, err)
	_, err = fs.AppendMessage(ctx, ticket.ID, "Hello", model.SenderUser)
	require.NoError(t, err)

	conv, err := loc.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, "Hello", conv.Messages[0].Content)
}

func TestFallbackWithoutLocalSurfacesError(t *testing.T) {
	primary := &stubStore{err: unavailable()}
	fs := &FallbackStore{Primary: primary}
	_, err := fs.ListTickets(context.Background())
	assert.ErrorIs(t, err, client.ErrUnavailable)
}

// flakyStore is a working store that can be taken offline.
type flakyStore struct {
	store.TicketStore
	down atomic.Bool
}

func (s *flakyStore) err() error {
	if s.down.Load() {
		return unavailable()
	}
	return nil
}

func (s *flakyStore) CreateTicket(ctx context.Context, name string) (model.Ticket, error) {
	if err := s.err(); err != nil {
		return model.Ticket{}, err
	}
	return s.TicketStore.CreateTicket(ctx, name)
}

func (s *flakyStore) GetTicket(ctx context.Context, id string) (model.Conversation, error) {
	if err := s.err(); err != nil {
		return model.Conversation{}, err
	}
	return s.TicketStore.GetTicket(ctx, id)
}

func (s *flakyStore) ListTickets(ctx context.Context) ([]model.Conversation, error) {
	if err := s.err(); err != nil {
		return nil, err
	}
	return s.TicketStore.ListTickets(ctx)
}

func (s *flakyStore) AppendMessage(ctx context.Context, id, content string, sender model.Sender) (model.Message, error) {
	if err := s.err(); err != nil {
		return model.Message{}, err
	}
	return s.TicketStore.AppendMessage(ctx, id, content, sender)
}

func (s *flakyStore) SetStatus(ctx context.Context, id string, status model.Status) error {
	if err := s.err(); err != nil {
		return err
	}
	return s.TicketStore.SetStatus(ctx, id, status)
}

func TestFallbackTicketSurvivesRecovery(t *testing.T) {
	ctx := context.Background()
	primary := &flakyStore{TicketStore: local.Open("", local.Options{})}
	fs := &FallbackStore{Primary: primary, Local: local.Open("", local.Options{})}

	online, err := fs.CreateTicket(ctx, "Sam")
	require.NoError(t, err)

	primary.down.Store(true)
	offline, err := fs.CreateTicket(ctx, "Jordan")
	require.NoError(t, err)
	_, err = fs.AppendMessage(ctx, offline.ID, "Hello", model.SenderUser)
	require.NoError(t, err)

	primary.down.Store(false)

	conv, err := fs.GetTicket(ctx, offline.ID)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 1)

	_, err = fs.AppendMessage(ctx, offline.ID, "Still there?", model.SenderUser)
	require.NoError(t, err)
	require.NoError(t, fs.SetStatus(ctx, offline.ID, model.StatusResolved))

	conv, err = fs.GetTicket(ctx, offline.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusResolved, conv.Status)
	require.Len(t, conv.Messages, 2)

	all, err := fs.ListTickets(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, offline.ID, all[0].ID, "most recently updated first")
	assert.Equal(t, online.ID, all[1].ID)

	_, err = fs.GetTicket(ctx, "NOPE0000")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, fs.SetStatus(ctx, "NOPE0000", model.StatusResolved), store.ErrNotFound)
}

func TestFallbackContractPrimaryUp(t *testing.T) {
	storetest.Run(t, func(t *testing.T, now func() time.Time) store.TicketStore {
		return &FallbackStore{
			Primary: local.Open("", local.Options{Now: now}),
			Local:   local.Open("", local.Options{Now: now}),
		}
	})
}
