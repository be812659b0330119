package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"supportdesk/internal/model"
	ticketsync "supportdesk/internal/sync"
)

var (
	watchTicket string
	watchStaff  bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow one ticket, or every ticket as staff, until interrupted",
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchTicket, "ticket", "", "ticket id to follow as the customer")
	watchCmd.Flags().BoolVar(&watchStaff, "staff", false, "follow all tickets as staff")
	addStaffFlags(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if (watchTicket == "") == !watchStaff {
		return errors.New("exactly one of --ticket or --staff is required")
	}
	env, err := newClientEnv()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	opts := ticketsync.ViewOptions{
		Interval: env.cfg.PollInterval,
		Publish:  func(s ticketsync.Snapshot) { renderSnapshot(out, s) },
	}

	if watchTicket != "" {
		view := ticketsync.NewClientView(env.publicStore(), watchTicket, opts)
		if err := view.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		view.Stop()
		return nil
	}

	st, session, err := env.login(ctx)
	if err != nil {
		return err
	}
	view, err := ticketsync.NewStaffView(st, session, opts)
	if err != nil {
		return fmt.Errorf("staff view: %w", err)
	}
	if err := view.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	view.Stop()
	return nil
}

func renderSnapshot(w io.Writer, s ticketsync.Snapshot) {
	fmt.Fprintf(w, "--- %s", s.RefreshedAt.Format("15:04:05"))
	if s.Identity.Username != "" {
		fmt.Fprintf(w, " (%s)", s.Identity.Username)
	}
	fmt.Fprintln(w)
	for _, conv := range s.Tickets {
		renderConversation(w, conv, len(s.Tickets) == 1)
	}
}

func renderConversation(w io.Writer, conv model.Conversation, withMessages bool) {
	fmt.Fprintf(w, "%s  %-20s %-8s %d message(s)\n", conv.ID, conv.ClientName, conv.Status, len(conv.Messages))
	if !withMessages {
		return
	}
	for _, m := range conv.Messages {
		fmt.Fprintf(w, "  [%s] %s: %s\n", m.CreatedAt.Format("15:04:05"), m.Sender, m.Content)
	}
}
