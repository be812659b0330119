package store

import (
	"strings"

	"github.com/google/uuid"
)

// NewTicketID returns a short uppercase token: the first group of a random UUID.
func NewTicketID() string {
	id := uuid.NewString()
	return strings.ToUpper(id[:strings.IndexByte(id, '-')])
}

func NewMessageID() string {
	return uuid.NewString()
}
