package store

import (
	"context"

	"supportdesk/internal/model"
)

// TicketStore is the read/write contract shared by the authoritative engines,
// the local fallback store and the networked client.
type TicketStore interface {
	CreateTicket(ctx context.Context, clientName string) (model.Ticket, error)
	GetTicket(ctx context.Context, id string) (model.Conversation, error)
	ListTickets(ctx context.Context) ([]model.Conversation, error)
	AppendMessage(ctx context.Context, ticketID, content string, sender model.Sender) (model.Message, error)
	SetStatus(ctx context.Context, ticketID string, status model.Status) error
}

type AccountStore interface {
	AccountByUsername(ctx context.Context, username string) (model.StaffAccount, error)
	UpsertAccount(ctx context.Context, account model.StaffAccount) error
}
