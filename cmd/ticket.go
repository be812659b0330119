package cmd

import (
	"github.com/spf13/cobra"

	"supportdesk/internal/model"
)

var ticketCmd = &cobra.Command{
	Use:   "ticket",
	Short: "Create and update tickets",
}

var ticketCreateCmd = &cobra.Command{
	Use:   "create <client-name>",
	Short: "Open a new ticket",
	Args:  cobra.ExactArgs(1),
	RunE:  runTicketCreate,
}

var ticketShowCmd = &cobra.Command{
	Use:   "show <ticket-id>",
	Short: "Print a ticket and its messages",
	Args:  cobra.ExactArgs(1),
	RunE:  runTicketShow,
}

var ticketSendCmd = &cobra.Command{
	Use:   "send <ticket-id> <message>",
	Short: "Send a customer message",
	Args:  cobra.ExactArgs(2),
	RunE:  runTicketSend,
}

var ticketReplyCmd = &cobra.Command{
	Use:   "reply <ticket-id> <message>",
	Short: "Reply as support staff",
	Args:  cobra.ExactArgs(2),
	RunE:  runTicketReply,
}

var ticketStatusCmd = &cobra.Command{
	Use:   "status <ticket-id> <active|resolved>",
	Short: "Resolve or reopen a ticket",
	Args:  cobra.ExactArgs(2),
	RunE:  runTicketStatus,
}

func init() {
	addStaffFlags(ticketReplyCmd)
	addStaffFlags(ticketStatusCmd)
	ticketCmd.AddCommand(ticketCreateCmd, ticketShowCmd, ticketSendCmd, ticketReplyCmd, ticketStatusCmd)
}

func runTicketCreate(cmd *cobra.Command, args []string) error {
	env, err := newClientEnv()
	if err != nil {
		return err
	}
	ticket, err := env.publicStore().CreateTicket(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), ticket)
}

func runTicketShow(cmd *cobra.Command, args []string) error {
	env, err := newClientEnv()
	if err != nil {
		return err
	}
	conv, err := env.publicStore().GetTicket(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), conv)
}

func runTicketSend(cmd *cobra.Command, args []string) error {
	env, err := newClientEnv()
	if err != nil {
		return err
	}
	msg, err := env.publicStore().AppendMessage(cmd.Context(), args[0], args[1], model.SenderUser)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), msg)
}

func runTicketReply(cmd *cobra.Command, args []string) error {
	env, err := newClientEnv()
	if err != nil {
		return err
	}
	st, _, err := env.login(cmd.Context())
	if err != nil {
		return err
	}
	msg, err := st.AppendMessage(cmd.Context(), args[0], args[1], model.SenderSupport)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), msg)
}

func runTicketStatus(cmd *cobra.Command, args []string) error {
	env, err := newClientEnv()
	if err != nil {
		return err
	}
	st, _, err := env.login(cmd.Context())
	if err != nil {
		return err
	}
	if err := st.SetStatus(cmd.Context(), args[0], model.Status(args[1])); err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), map[string]any{"success": true})
}
