// Package local is a single-user ticket store persisted to a JSON file on the
// client machine. It honours the same contract as the networked store and is
// used when no server is reachable.
package local

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/natefinch/atomic"

	"supportdesk/internal/model"
	"supportdesk/internal/store"
)

const fileVersion = 1

type Store struct {
	mu      sync.RWMutex
	path    string
	now     func() time.Time
	lastID  int64
	tickets []model.Conversation // newest created first
}

var _ store.TicketStore = (*Store)(nil)

type Options struct {
	Now func() time.Time
}

type persistedFile struct {
	Version int                  `json:"version"`
	Tickets []model.Conversation `json:"tickets"`
	SavedAt int64                `json:"savedAt"`
}

// Open loads the collection at path. An empty path keeps everything in memory.
// A missing file starts empty; an unreadable one is logged and ignored.
func Open(path string, opts Options) *Store {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	s := &Store{path: path, now: now}
	if path != "" {
		if err := s.load(); err != nil {
			log.Printf("local store: load failed (%s): %v", path, err)
		}
	}
	return s
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}

	var file persistedFile
	if err := json.Unmarshal(data, &file); err != nil {
		return err
	}
	if file.Version != fileVersion {
		return errors.New("unsupported local store version")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conv := range file.Tickets {
		if conv.ID == "" {
			continue
		}
		if conv.Messages == nil {
			conv.Messages = []model.Message{}
		}
		s.seedID(conv.ID)
		for i := range conv.Messages {
			conv.Messages[i].Seq = int64(i + 1)
			s.seedID(conv.Messages[i].ID)
		}
		s.tickets = append(s.tickets, conv)
	}
	return nil
}

// seedID keeps generated ids above every clock-derived id already on disk.
func (s *Store) seedID(id string) {
	n, err := strconv.ParseInt(id, 36, 64)
	if err == nil && n > s.lastID {
		s.lastID = n
	}
}

func (s *Store) CreateTicket(_ context.Context, clientName string) (model.Ticket, error) {
	name, err := store.NormalizeClientName(clientName)
	if err != nil {
		return model.Ticket{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stamp := store.NextStamp(s.now(), time.Time{})
	conv := model.Conversation{
		Ticket: model.Ticket{
			ID:         s.nextTicketIDLocked(),
			ClientName: name,
			Status:     model.StatusActive,
			CreatedAt:  stamp,
			UpdatedAt:  stamp,
		},
		Messages: []model.Message{},
	}

	next := make([]model.Conversation, 0, len(s.tickets)+1)
	next = append(next, conv)
	next = append(next, s.tickets...)
	if err := s.commitLocked(next); err != nil {
		return model.Ticket{}, err
	}
	return conv.Ticket, nil
}

func (s *Store) GetTicket(_ context.Context, id string) (model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexLocked(id)
	if i < 0 {
		return model.Conversation{}, store.ErrNotFound
	}
	return cloneConversation(s.tickets[i]), nil
}

func (s *Store) ListTickets(_ context.Context) ([]model.Conversation, error) {
	s.mu.RLock()
	result := make([]model.Conversation, 0, len(s.tickets))
	for _, conv := range s.tickets {
		result = append(result, cloneConversation(conv))
	}
	s.mu.RUnlock()

	store.SortConversations(result)
	return result, nil
}

func (s *Store) AppendMessage(_ context.Context, ticketID, content string, sender model.Sender) (model.Message, error) {
	text, err := store.NormalizeMessage(content, sender)
	if err != nil {
		return model.Message{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(ticketID)
	if i < 0 {
		return model.Message{}, store.ErrNotFound
	}
	conv := cloneConversation(s.tickets[i])
	msg := model.Message{
		ID:        s.nextIDLocked(),
		TicketID:  ticketID,
		Content:   text,
		Sender:    sender,
		CreatedAt: store.NextStamp(s.now(), conv.UpdatedAt),
		Seq:       int64(len(conv.Messages) + 1),
	}
	conv.Messages = append(conv.Messages, msg)
	conv.UpdatedAt = msg.CreatedAt

	if err := s.commitLocked(s.replaceLocked(i, conv)); err != nil {
		return model.Message{}, err
	}
	return msg, nil
}

func (s *Store) SetStatus(_ context.Context, ticketID string, status model.Status) error {
	if err := store.ValidateStatus(status); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(ticketID)
	if i < 0 {
		return store.ErrNotFound
	}
	conv := cloneConversation(s.tickets[i])
	conv.Status = status
	conv.UpdatedAt = store.NextStamp(s.now(), conv.UpdatedAt)
	return s.commitLocked(s.replaceLocked(i, conv))
}

func (s *Store) indexLocked(id string) int {
	for i := range s.tickets {
		if s.tickets[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) replaceLocked(i int, conv model.Conversation) []model.Conversation {
	next := make([]model.Conversation, len(s.tickets))
	copy(next, s.tickets)
	next[i] = conv
	return next
}

// nextIDLocked derives an id from the clock, bumped so ids never repeat even
// when the clock stalls or steps back.
func (s *Store) nextIDLocked() string {
	n := s.now().UnixNano()
	if n <= s.lastID {
		n = s.lastID + 1
	}
	s.lastID = n
	return strings.ToUpper(strconv.FormatInt(n, 36))
}

func (s *Store) nextTicketIDLocked() string {
	for {
		id := s.nextIDLocked()
		if s.indexLocked(id) < 0 {
			return id
		}
	}
}

// commitLocked persists next and only then makes it the visible state, so a
// failed write leaves the previous state untouched.
func (s *Store) commitLocked(next []model.Conversation) error {
	if s.path != "" {
		if err := s.persist(next); err != nil {
			return err
		}
	}
	s.tickets = next
	return nil
}

func (s *Store) persist(tickets []model.Conversation) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	file := persistedFile{Version: fileVersion, Tickets: tickets, SavedAt: s.now().UnixMilli()}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return atomic.WriteFile(s.path, bytes.NewReader(data))
}

func cloneConversation(conv model.Conversation) model.Conversation {
	msgs := make([]model.Message, len(conv.Messages))
	copy(msgs, conv.Messages)
	conv.Messages = msgs
	return conv
}
