package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"supportdesk/internal/model"
	"supportdesk/internal/store"
)

const maxTicketIDAttempts = 5

// Store is the PostgreSQL-backed authoritative store. Writes to one ticket
// serialize on the ticket row lock.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var (
	_ store.TicketStore  = (*Store)(nil)
	_ store.AccountStore = (*Store)(nil)
)

type Options struct {
	Now func() time.Time
}

func Open(ctx context.Context, databaseURL string, opts Options) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	s := NewStore(pool, opts)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func NewStore(pool *pgxpool.Pool, opts Options) *Store {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{pool: pool, now: now}
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS staff (
			id TEXT PRIMARY KEY,
			username TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'operator',
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS tickets (
			id TEXT PRIMARY KEY,
			client_name TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			ticket_id TEXT NOT NULL REFERENCES tickets(id) ON DELETE CASCADE,
			seq BIGINT NOT NULL,
			content TEXT NOT NULL,
			sender TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_messages_ticket ON messages(ticket_id, created_at, seq);
		CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets(status);
		CREATE INDEX IF NOT EXISTS idx_tickets_updated ON tickets(updated_at);
	`)
	return err
}

func (s *Store) CreateTicket(ctx context.Context, clientName string) (model.Ticket, error) {
	name, err := store.NormalizeClientName(clientName)
	if err != nil {
		return model.Ticket{}, err
	}

	stamp := store.NextStamp(s.now(), time.Time{})
	for attempt := 0; attempt < maxTicketIDAttempts; attempt++ {
		t := model.Ticket{
			ID:         store.NewTicketID(),
			ClientName: name,
			Status:     model.StatusActive,
			CreatedAt:  stamp,
			UpdatedAt:  stamp,
		}
		tag, err := s.pool.Exec(ctx, `
			INSERT INTO tickets (id, client_name, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO NOTHING
		`, t.ID, t.ClientName, string(t.Status), t.CreatedAt, t.UpdatedAt)
		if err != nil {
			return model.Ticket{}, fmt.Errorf("insert ticket: %w", err)
		}
		if tag.RowsAffected() == 1 {
			return t, nil
		}
	}
	return model.Ticket{}, errors.New("insert ticket: could not allocate a unique id")
}

func (s *Store) GetTicket(ctx context.Context, id string) (model.Conversation, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return model.Conversation{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		conv   model.Conversation
		status string
	)
	err = tx.QueryRow(ctx, `
		SELECT id, client_name, status, created_at, updated_at FROM tickets WHERE id = $1
	`, id).Scan(&conv.ID, &conv.ClientName, &status, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Conversation{}, store.ErrNotFound
		}
		return model.Conversation{}, err
	}
	conv.Status = model.Status(status)
	conv.CreatedAt = conv.CreatedAt.UTC()
	conv.UpdatedAt = conv.UpdatedAt.UTC()

	rows, err := tx.Query(ctx, `
		SELECT id, ticket_id, seq, content, sender, created_at
		FROM messages WHERE ticket_id = $1
		ORDER BY created_at ASC, seq ASC
	`, id)
	if err != nil {
		return model.Conversation{}, err
	}
	conv.Messages, err = scanMessages(rows)
	if err != nil {
		return model.Conversation{}, err
	}
	return conv, tx.Commit(ctx)
}

func (s *Store) ListTickets(ctx context.Context) ([]model.Conversation, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT id, client_name, status, created_at, updated_at
		FROM tickets ORDER BY updated_at DESC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	convs := []model.Conversation{}
	index := make(map[string]int)
	for rows.Next() {
		var (
			c      model.Conversation
			status string
		)
		if err := rows.Scan(&c.ID, &c.ClientName, &status, &c.CreatedAt, &c.UpdatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		c.Status = model.Status(status)
		c.CreatedAt = c.CreatedAt.UTC()
		c.UpdatedAt = c.UpdatedAt.UTC()
		c.Messages = []model.Message{}
		index[c.ID] = len(convs)
		convs = append(convs, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	msgRows, err := tx.Query(ctx, `
		SELECT id, ticket_id, seq, content, sender, created_at
		FROM messages ORDER BY ticket_id, created_at ASC, seq ASC
	`)
	if err != nil {
		return nil, err
	}
	msgs, err := scanMessages(msgRows)
	if err != nil {
		return nil, err
	}
	for _, m := range msgs {
		if i, ok := index[m.TicketID]; ok {
			convs[i].Messages = append(convs[i].Messages, m)
		}
	}
	return convs, tx.Commit(ctx)
}

func (s *Store) AppendMessage(ctx context.Context, ticketID, content string, sender model.Sender) (model.Message, error) {
	text, err := store.NormalizeMessage(content, sender)
	if err != nil {
		return model.Message{}, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return model.Message{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	prev, err := lockTicket(ctx, tx, ticketID)
	if err != nil {
		return model.Message{}, err
	}

	var seq int64
	if err := tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE ticket_id = $1
	`, ticketID).Scan(&seq); err != nil {
		return model.Message{}, err
	}

	msg := model.Message{
		ID:        store.NewMessageID(),
		TicketID:  ticketID,
		Content:   text,
		Sender:    sender,
		CreatedAt: store.NextStamp(s.now(), prev),
		Seq:       seq,
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO messages (id, ticket_id, seq, content, sender, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, msg.ID, msg.TicketID, msg.Seq, msg.Content, string(msg.Sender), msg.CreatedAt); err != nil {
		return model.Message{}, fmt.Errorf("insert message: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE tickets SET updated_at = $1 WHERE id = $2`, msg.CreatedAt, ticketID); err != nil {
		return model.Message{}, fmt.Errorf("touch ticket: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Message{}, err
	}
	return msg, nil
}

func (s *Store) SetStatus(ctx context.Context, ticketID string, status model.Status) error {
	if err := store.ValidateStatus(status); err != nil {
		return err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	prev, err := lockTicket(ctx, tx, ticketID)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE tickets SET status = $1, updated_at = $2 WHERE id = $3
	`, string(status), store.NextStamp(s.now(), prev), ticketID); err != nil {
		return fmt.Errorf("update ticket: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *Store) AccountByUsername(ctx context.Context, username string) (model.StaffAccount, error) {
	var acct model.StaffAccount
	err := s.pool.QueryRow(ctx, `
		SELECT id, username, password_hash, role, created_at FROM staff WHERE username = $1
	`, username).Scan(&acct.ID, &acct.Username, &acct.PasswordHash, &acct.Role, &acct.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.StaffAccount{}, store.ErrNotFound
		}
		return model.StaffAccount{}, err
	}
	return acct, nil
}

func (s *Store) UpsertAccount(ctx context.Context, acct model.StaffAccount) error {
	if acct.Role == "" {
		acct.Role = model.DefaultRole
	}
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = s.now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO staff (id, username, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (username) DO UPDATE SET password_hash = EXCLUDED.password_hash, role = EXCLUDED.role
	`, acct.ID, acct.Username, acct.PasswordHash, acct.Role, acct.CreatedAt)
	return err
}

func lockTicket(ctx context.Context, tx pgx.Tx, ticketID string) (time.Time, error) {
	var updated time.Time
	err := tx.QueryRow(ctx, `SELECT updated_at FROM tickets WHERE id = $1 FOR UPDATE`, ticketID).Scan(&updated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, store.ErrNotFound
		}
		return time.Time{}, err
	}
	return updated.UTC(), nil
}

func scanMessages(rows pgx.Rows) ([]model.Message, error) {
	defer rows.Close()
	msgs := []model.Message{}
	for rows.Next() {
		var (
			m      model.Message
			sender string
		)
		if err := rows.Scan(&m.ID, &m.TicketID, &m.Seq, &m.Content, &sender, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Sender = model.Sender(sender)
		m.CreatedAt = m.CreatedAt.UTC()
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
