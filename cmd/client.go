package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"supportdesk/internal/client"
	"supportdesk/internal/config"
	"supportdesk/internal/store"
	"supportdesk/internal/store/local"
	ticketsync "supportdesk/internal/sync"
)

var (
	staffUsername string
	staffPassword string
)

// addStaffFlags registers the credentials used by staff-only commands.
func addStaffFlags(c *cobra.Command) {
	c.Flags().StringVar(&staffUsername, "username", "", "staff username")
	c.Flags().StringVar(&staffPassword, "password", "", "staff password (default $SUPPORT_PASSWORD)")
}

type clientEnv struct {
	cfg    config.ClientConfig
	remote *client.Client
	local  *local.Store
}

func newClientEnv() (*clientEnv, error) {
	cfg, err := config.LoadClientConfig()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	env := &clientEnv{
		cfg:   cfg,
		local: local.Open(cfg.LocalStorePath, local.Options{}),
	}
	if cfg.APIURL != "" {
		env.remote = client.New(cfg.APIURL, client.Options{Timeout: cfg.RequestTimeout})
	}
	return env, nil
}

// publicStore serves anonymous customer calls.
func (e *clientEnv) publicStore() store.TicketStore {
	fs := &ticketsync.FallbackStore{Local: e.local}
	if e.remote != nil {
		fs.Primary = e.remote
	}
	return fs
}

// login returns a session-bound store for staff calls. Without a configured
// API only the local store is used, which needs no session.
func (e *clientEnv) login(ctx context.Context) (store.TicketStore, client.Session, error) {
	if e.remote == nil {
		return &ticketsync.FallbackStore{Local: e.local}, client.Session{}, nil
	}
	password := staffPassword
	if password == "" {
		password = os.Getenv("SUPPORT_PASSWORD")
	}
	if staffUsername == "" || password == "" {
		return nil, client.Session{}, errors.New("--username and --password are required for staff commands")
	}
	session, err := e.remote.Login(ctx, staffUsername, password)
	if err != nil {
		return nil, client.Session{}, fmt.Errorf("login: %w", err)
	}
	return &ticketsync.FallbackStore{Primary: e.remote.WithSession(session), Local: e.local}, session, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
