package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"supportdesk/internal/model"
	"supportdesk/internal/store"
)

const maxTicketIDAttempts = 5

// Store is the SQLite-backed authoritative ticket and staff account store.
type Store struct {
	db         *sql.DB
	partitions *store.Partitions
	now        func() time.Time
}

var (
	_ store.TicketStore  = (*Store)(nil)
	_ store.AccountStore = (*Store)(nil)
)

type Options struct {
	// Now overrides the clock; defaults to time.Now.
	Now func() time.Time
}

// Open opens (creating if needed) the database at path. ":memory:" gives a
// private in-memory database.
func Open(path string, opts Options) (*Store, error) {
	inMemory := path == ":memory:"
	dsn := "file::memory:?_foreign_keys=on&_txlock=immediate"
	if !inMemory {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
		dsn = "file:" + path + "?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Every connection to :memory: is a separate database.
	if inMemory {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	s := &Store{db: db, partitions: store.NewPartitions(), now: now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS staff (
			id TEXT PRIMARY KEY,
			username TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'operator',
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tickets (
			id TEXT PRIMARY KEY,
			client_name TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			ticket_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			content TEXT NOT NULL,
			sender TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			FOREIGN KEY (ticket_id) REFERENCES tickets(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_ticket ON messages(ticket_id, created_at, seq)`,
		`CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets(status)`,
		`CREATE INDEX IF NOT EXISTS idx_tickets_updated ON tickets(updated_at)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
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
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO tickets (id, client_name, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`, t.ID, t.ClientName, string(t.Status), t.CreatedAt.UnixMilli(), t.UpdatedAt.UnixMilli())
		if err != nil {
			return model.Ticket{}, fmt.Errorf("insert ticket: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 1 {
			return t, nil
		}
	}
	return model.Ticket{}, errors.New("insert ticket: could not allocate a unique id")
}

func (s *Store) GetTicket(ctx context.Context, id string) (model.Conversation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Conversation{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		conv             model.Conversation
		status           string
		created, updated int64
	)
	err = tx.QueryRowContext(ctx, `
		SELECT id, client_name, status, created_at, updated_at FROM tickets WHERE id = ?
	`, id).Scan(&conv.ID, &conv.ClientName, &status, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Conversation{}, store.ErrNotFound
		}
		return model.Conversation{}, err
	}
	conv.Status = model.Status(status)
	conv.CreatedAt = fromMillis(created)
	conv.UpdatedAt = fromMillis(updated)

	rows, err := tx.QueryContext(ctx, `
		SELECT id, ticket_id, seq, content, sender, created_at
		FROM messages WHERE ticket_id = ?
		ORDER BY created_at ASC, seq ASC
	`, id)
	if err != nil {
		return model.Conversation{}, err
	}
	msgs, err := scanMessages(rows)
	if err != nil {
		return model.Conversation{}, err
	}
	conv.Messages = msgs
	return conv, tx.Commit()
}

func (s *Store) ListTickets(ctx context.Context) ([]model.Conversation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
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
			c                model.Conversation
			status           string
			created, updated int64
		)
		if err := rows.Scan(&c.ID, &c.ClientName, &status, &created, &updated); err != nil {
			rows.Close()
			return nil, err
		}
		c.Status = model.Status(status)
		c.CreatedAt = fromMillis(created)
		c.UpdatedAt = fromMillis(updated)
		c.Messages = []model.Message{}
		index[c.ID] = len(convs)
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	msgRows, err := tx.QueryContext(ctx, `
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
	return convs, tx.Commit()
}

func (s *Store) AppendMessage(ctx context.Context, ticketID, content string, sender model.Sender) (model.Message, error) {
	text, err := store.NormalizeMessage(content, sender)
	if err != nil {
		return model.Message{}, err
	}

	release := s.partitions.Lock(ticketID)
	defer release()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Message{}, err
	}
	defer func() { _ = tx.Rollback() }()

	prev, err := ticketUpdatedAt(ctx, tx, ticketID)
	if err != nil {
		return model.Message{}, err
	}

	var seq int64
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE ticket_id = ?
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
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, ticket_id, seq, content, sender, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.TicketID, msg.Seq, msg.Content, string(msg.Sender), msg.CreatedAt.UnixMilli()); err != nil {
		return model.Message{}, fmt.Errorf("insert message: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE tickets SET updated_at = ? WHERE id = ?`, msg.CreatedAt.UnixMilli(), ticketID); err != nil {
		return model.Message{}, fmt.Errorf("touch ticket: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return model.Message{}, err
	}
	return msg, nil
}

func (s *Store) SetStatus(ctx context.Context, ticketID string, status model.Status) error {
	if err := store.ValidateStatus(status); err != nil {
		return err
	}

	release := s.partitions.Lock(ticketID)
	defer release()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	prev, err := ticketUpdatedAt(ctx, tx, ticketID)
	if err != nil {
		return err
	}
	stamp := store.NextStamp(s.now(), prev)
	if _, err := tx.ExecContext(ctx, `
		UPDATE tickets SET status = ?, updated_at = ? WHERE id = ?
	`, string(status), stamp.UnixMilli(), ticketID); err != nil {
		return fmt.Errorf("update ticket: %w", err)
	}
	return tx.Commit()
}

func (s *Store) AccountByUsername(ctx context.Context, username string) (model.StaffAccount, error) {
	var (
		acct    model.StaffAccount
		created int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, role, created_at FROM staff WHERE username = ?
	`, username).Scan(&acct.ID, &acct.Username, &acct.PasswordHash, &acct.Role, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.StaffAccount{}, store.ErrNotFound
		}
		return model.StaffAccount{}, err
	}
	acct.CreatedAt = fromMillis(created)
	return acct, nil
}

func (s *Store) UpsertAccount(ctx context.Context, acct model.StaffAccount) error {
	if acct.Role == "" {
		acct.Role = model.DefaultRole
	}
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO staff (id, username, password_hash, role, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET password_hash = excluded.password_hash, role = excluded.role
	`, acct.ID, acct.Username, acct.PasswordHash, acct.Role, acct.CreatedAt.UnixMilli())
	return err
}

func ticketUpdatedAt(ctx context.Context, tx *sql.Tx, ticketID string) (time.Time, error) {
	var updated int64
	err := tx.QueryRowContext(ctx, `SELECT updated_at FROM tickets WHERE id = ?`, ticketID).Scan(&updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, store.ErrNotFound
		}
		return time.Time{}, err
	}
	return fromMillis(updated), nil
}

func scanMessages(rows *sql.Rows) ([]model.Message, error) {
	defer rows.Close()
	msgs := []model.Message{}
	for rows.Next() {
		var (
			m       model.Message
			sender  string
			created int64
		)
		if err := rows.Scan(&m.ID, &m.TicketID, &m.Seq, &m.Content, &sender, &created); err != nil {
			return nil, err
		}
		m.Sender = model.Sender(sender)
		m.CreatedAt = fromMillis(created)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
