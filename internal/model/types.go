package model

import "time"

type Status string

const (
	StatusActive   Status = "active"
	StatusResolved Status = "resolved"
)

func (s Status) Valid() bool {
	return s == StatusActive || s == StatusResolved
}

type Sender string

const (
	SenderUser    Sender = "user"
	SenderSupport Sender = "support"
)

func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderSupport
}

type Ticket struct {
	ID         string    `json:"id"`
	ClientName string    `json:"client_name"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Message struct {
	ID        string    `json:"id"`
	TicketID  string    `json:"ticket_id"`
	Content   string    `json:"content"`
	Sender    Sender    `json:"sender"`
	CreatedAt time.Time `json:"created_at"`
	// Seq is the insertion order within the ticket; it only breaks createdAt ties.
	Seq int64 `json:"-"`
}

// Conversation is a ticket together with its messages in display order.
type Conversation struct {
	Ticket
	Messages []Message `json:"messages"`
}

type StaffAccount struct {
	ID           string
	Username     string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

const DefaultRole = "operator"

type Identity struct {
	AccountID string `json:"id"`
	Username  string `json:"username"`
	Role      string `json:"role"`
}

type SessionCredential struct {
	Token     string
	Identity  Identity
	ExpiresAt time.Time
}
