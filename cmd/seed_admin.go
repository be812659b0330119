package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"supportdesk/internal/auth"
	"supportdesk/internal/config"
)

var (
	seedUsername string
	seedPassword string
)

var seedAdminCmd = &cobra.Command{
	Use:   "seed-admin",
	Short: "Create or reset the administrator account",
	RunE:  runSeedAdmin,
}

func init() {
	seedAdminCmd.Flags().StringVar(&seedUsername, "username", auth.DefaultBootstrapUsername, "administrator username")
	seedAdminCmd.Flags().StringVar(&seedPassword, "password", auth.DefaultBootstrapPassword, "administrator password")
}

func runSeedAdmin(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	st, err := openServerStore(ctx, config.LoadStorageConfig())
	if err != nil {
		return err
	}
	defer st.Close()

	if err := auth.Bootstrap(ctx, st, seedUsername, seedPassword); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	log.Printf("seed-admin: account %q ready", seedUsername)
	return nil
}
