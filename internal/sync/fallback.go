// Package sync keeps client and staff projections of tickets fresh and
// degrades to a local store when the support service cannot be reached.
package sync

import (
	"context"
	"errors"
	"log"

	"supportdesk/internal/client"
	"supportdesk/internal/model"
	"supportdesk/internal/store"
)

// FallbackStore tries Primary and repeats the call on Local when Primary is
// unreachable. Tickets created locally during an outage stay reachable after
// Primary recovers: a not-found answer from Primary is retried on Local, and
// listings include tickets only Local knows. Any other Primary error is
// returned as is. A nil Primary sends every call to Local.
type FallbackStore struct {
	Primary store.TicketStore
	Local   store.TicketStore
}

var _ store.TicketStore = (*FallbackStore)(nil)

func (f *FallbackStore) shouldFallBack(op string, err error) bool {
	if err == nil || f.Local == nil || !errors.Is(err, client.ErrUnavailable) {
		return false
	}
	log.Printf("sync: %s: primary unavailable, using local store: %v", op, err)
	return true
}

// tryLocal reports whether a call that failed on Primary should be repeated
// on Local: Primary is down, or it has never seen the ticket.
func (f *FallbackStore) tryLocal(op string, err error) bool {
	if f.shouldFallBack(op, err) {
		return true
	}
	return err != nil && f.Local != nil && errors.Is(err, store.ErrNotFound)
}

func (f *FallbackStore) CreateTicket(ctx context.Context, clientName string) (model.Ticket, error) {
	if f.Primary == nil {
		return f.Local.CreateTicket(ctx, clientName)
	}
	t, err := f.Primary.CreateTicket(ctx, clientName)
	if f.shouldFallBack("create ticket", err) {
		return f.Local.CreateTicket(ctx, clientName)
	}
	return t, err
}

func (f *FallbackStore) GetTicket(ctx context.Context, id string) (model.Conversation, error) {
	if f.Primary == nil {
		return f.Local.GetTicket(ctx, id)
	}
	conv, err := f.Primary.GetTicket(ctx, id)
	if f.tryLocal("get ticket", err) {
		localConv, localErr := f.Local.GetTicket(ctx, id)
		return localConv, preferPrimaryNotFound(err, localErr)
	}
	return conv, err
}

func (f *FallbackStore) ListTickets(ctx context.Context) ([]model.Conversation, error) {
	if f.Primary == nil {
		return f.Local.ListTickets(ctx)
	}
	convs, err := f.Primary.ListTickets(ctx)
	if f.shouldFallBack("list tickets", err) {
		return f.Local.ListTickets(ctx)
	}
	if err != nil || f.Local == nil {
		return convs, err
	}

	localConvs, localErr := f.Local.ListTickets(ctx)
	if localErr != nil {
		log.Printf("sync: list tickets: local store: %v", localErr)
		return convs, nil
	}
	return mergeConversations(convs, localConvs), nil
}

// mergeConversations adds the tickets only the local store holds.
func mergeConversations(primary, offline []model.Conversation) []model.Conversation {
	if len(offline) == 0 {
		return primary
	}
	seen := make(map[string]bool, len(primary))
	for _, c := range primary {
		seen[c.ID] = true
	}
	merged := append([]model.Conversation(nil), primary...)
	for _, c := range offline {
		if !seen[c.ID] {
			merged = append(merged, c)
		}
	}
	store.SortConversations(merged)
	return merged
}

// preferPrimaryNotFound keeps Primary's error when Local does not know the
// ticket either.
func preferPrimaryNotFound(primaryErr, localErr error) error {
	if errors.Is(primaryErr, store.ErrNotFound) && errors.Is(localErr, store.ErrNotFound) {
		return primaryErr
	}
	return localErr
}

func (f *FallbackStore) AppendMessage(ctx context.Context, ticketID, content string, sender model.Sender) (model.Message, error) {
	if f.Primary == nil {
		return f.Local.AppendMessage(ctx, ticketID, content, sender)
	}
	msg, err := f.Primary.AppendMessage(ctx, ticketID, content, sender)
	if f.tryLocal("append message", err) {
		localMsg, localErr := f.Local.AppendMessage(ctx, ticketID, content, sender)
		return localMsg, preferPrimaryNotFound(err, localErr)
	}
	return msg, err
}

func (f *FallbackStore) SetStatus(ctx context.Context, ticketID string, status model.Status) error {
	if f.Primary == nil {
		return f.Local.SetStatus(ctx, ticketID, status)
	}
	err := f.Primary.SetStatus(ctx, ticketID, status)
	if f.tryLocal("set status", err) {
		return preferPrimaryNotFound(err, f.Local.SetStatus(ctx, ticketID, status))
	}
	return err
}
