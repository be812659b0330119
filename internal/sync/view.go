package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"supportdesk/internal/client"
	"supportdesk/internal/model"
	"supportdesk/internal/store"
	"supportdesk/internal/store/local"
)

const DefaultInterval = time.Second

var (
	ErrNoSelection = errors.New("no ticket selected")
	ErrRunning     = errors.New("view already running")
)

// Snapshot is an immutable copy of a view's projection. Selected points into
// Tickets.
type Snapshot struct {
	Tickets     []model.Conversation
	Selected    *model.Conversation
	Identity    model.Identity
	RefreshedAt time.Time
}

type ViewOptions struct {
	Interval time.Duration
	// Publish receives every refreshed snapshot on the polling goroutine. It
	// must not call Stop.
	Publish func(Snapshot)
	Now     func() time.Time
}

type view struct {
	name     string
	interval time.Duration
	publish  func(Snapshot)
	now      func() time.Time
	fetch    func(ctx context.Context) ([]model.Conversation, error)
	identity model.Identity

	refreshMu sync.Mutex

	mu          sync.Mutex
	tickets     []model.Conversation
	selected    string
	refreshedAt time.Time
	task        *Task
}

func (v *view) init(name string, opts ViewOptions) {
	v.name = name
	v.interval = opts.Interval
	v.publish = opts.Publish
	v.now = opts.Now
	if v.interval <= 0 {
		v.interval = DefaultInterval
	}
	if v.now == nil {
		v.now = time.Now
	}
}

func (v *view) start(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.task != nil {
		return ErrRunning
	}
	v.task = Schedule(ctx, v.interval, func(ctx context.Context) {
		_ = v.refresh(ctx)
	})
	return nil
}

func (v *view) stop() {
	v.mu.Lock()
	task := v.task
	v.task = nil
	v.mu.Unlock()
	if task != nil {
		task.Stop()
	}
	// wait out a refresh started by a write before the stop
	v.refreshMu.Lock()
	v.refreshMu.Unlock()
}

// refresh replaces the projection wholesale. On error the previous
// projection is kept.
func (v *view) refresh(ctx context.Context) error {
	v.refreshMu.Lock()
	defer v.refreshMu.Unlock()
	return v.refreshLocked(ctx)
}

func (v *view) refreshLocked(ctx context.Context) error {
	tickets, err := v.fetch(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("sync: %s: poll: %v", v.name, err)
		}
		return err
	}

	v.mu.Lock()
	v.tickets = tickets
	v.refreshedAt = v.now()
	if v.selected != "" && indexOf(tickets, v.selected) < 0 {
		log.Printf("sync: %s: selected ticket %s no longer listed", v.name, v.selected)
		v.selected = ""
	}
	snap := v.snapshotLocked()
	v.mu.Unlock()

	if v.publish != nil {
		v.publish(snap)
	}
	return nil
}

// refreshAfterWrite skips the refresh once the view is stopped, so a stopped
// view never reads from its store.
func (v *view) refreshAfterWrite(ctx context.Context) {
	v.refreshMu.Lock()
	defer v.refreshMu.Unlock()
	v.mu.Lock()
	running := v.task != nil
	v.mu.Unlock()
	if running {
		_ = v.refreshLocked(ctx)
	}
}

func (v *view) snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked()
}

func (v *view) snapshotLocked() Snapshot {
	snap := Snapshot{
		Tickets:     append([]model.Conversation(nil), v.tickets...),
		Identity:    v.identity,
		RefreshedAt: v.refreshedAt,
	}
	if i := indexOf(snap.Tickets, v.selected); i >= 0 {
		snap.Selected = &snap.Tickets[i]
	}
	return snap
}

func (v *view) selectedConversation() (model.Conversation, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if i := indexOf(v.tickets, v.selected); i >= 0 {
		return v.tickets[i], true
	}
	return model.Conversation{}, false
}

func indexOf(tickets []model.Conversation, id string) int {
	if id == "" {
		return -1
	}
	for i := range tickets {
		if tickets[i].ID == id {
			return i
		}
	}
	return -1
}

// ClientView follows the single ticket a customer opened.
type ClientView struct {
	view
	store    store.TicketStore
	ticketID string
}

func NewClientView(st store.TicketStore, ticketID string, opts ViewOptions) *ClientView {
	cv := &ClientView{store: st, ticketID: ticketID}
	cv.init("client view "+ticketID, opts)
	cv.selected = ticketID
	cv.fetch = func(ctx context.Context) ([]model.Conversation, error) {
		conv, err := st.GetTicket(ctx, ticketID)
		if err != nil {
			return nil, err
		}
		return []model.Conversation{conv}, nil
	}
	return cv
}

func (cv *ClientView) TicketID() string { return cv.ticketID }

func (cv *ClientView) Start(ctx context.Context) error { return cv.start(ctx) }

func (cv *ClientView) Stop() { cv.stop() }

func (cv *ClientView) Refresh(ctx context.Context) error { return cv.refresh(ctx) }

func (cv *ClientView) Snapshot() Snapshot { return cv.snapshot() }

func (cv *ClientView) Selected() (model.Conversation, bool) {
	v := &cv.view
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.tickets) == 0 {
		return model.Conversation{}, false
	}
	return v.tickets[0], true
}

// Send appends a customer message and refreshes the projection.
func (cv *ClientView) Send(ctx context.Context, content string) (model.Message, error) {
	msg, err := cv.store.AppendMessage(ctx, cv.ticketID, content, model.SenderUser)
	if err != nil {
		return model.Message{}, err
	}
	cv.refreshAfterWrite(ctx)
	return msg, nil
}

// StaffView lists every ticket on behalf of a signed-in staff member.
type StaffView struct {
	view
	store   store.TicketStore
	session client.Session
}

// NewStaffView needs st to already carry session's credential, typically a
// FallbackStore over client.WithSession(session). A store without a
// networked primary is single-user and takes an empty session.
func NewStaffView(st store.TicketStore, session client.Session, opts ViewOptions) (*StaffView, error) {
	sv := &StaffView{store: st, session: session}
	sv.init("staff view", opts)
	if needsSession(st) && !session.Valid(sv.now()) {
		return nil, client.ErrNoSession
	}
	sv.identity = session.Identity
	sv.fetch = st.ListTickets
	return sv, nil
}

func needsSession(st store.TicketStore) bool {
	switch s := st.(type) {
	case *FallbackStore:
		return s.Primary != nil
	case *local.Store:
		return false
	}
	return true
}

func (sv *StaffView) Session() client.Session { return sv.session }

func (sv *StaffView) Start(ctx context.Context) error { return sv.start(ctx) }

func (sv *StaffView) Stop() { sv.stop() }

func (sv *StaffView) Refresh(ctx context.Context) error { return sv.refresh(ctx) }

func (sv *StaffView) Snapshot() Snapshot { return sv.snapshot() }

// Select points the view at a listed ticket; an empty id clears it.
func (sv *StaffView) Select(id string) error {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	if id != "" && indexOf(sv.tickets, id) < 0 {
		return fmt.Errorf("select %s: %w", id, store.ErrNotFound)
	}
	sv.selected = id
	return nil
}

func (sv *StaffView) Selected() (model.Conversation, bool) {
	return sv.selectedConversation()
}

func (sv *StaffView) selectedID() (string, error) {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	if sv.selected == "" {
		return "", ErrNoSelection
	}
	return sv.selected, nil
}

// Reply posts a support message to the selected ticket.
func (sv *StaffView) Reply(ctx context.Context, content string) (model.Message, error) {
	id, err := sv.selectedID()
	if err != nil {
		return model.Message{}, err
	}
	msg, err := sv.store.AppendMessage(ctx, id, content, model.SenderSupport)
	if err != nil {
		return model.Message{}, err
	}
	sv.refreshAfterWrite(ctx)
	return msg, nil
}

// SetStatus resolves or reopens the selected ticket.
func (sv *StaffView) SetStatus(ctx context.Context, status model.Status) error {
	id, err := sv.selectedID()
	if err != nil {
		return err
	}
	if err := sv.store.SetStatus(ctx, id, status); err != nil {
		return err
	}
	sv.refreshAfterWrite(ctx)
	return nil
}
