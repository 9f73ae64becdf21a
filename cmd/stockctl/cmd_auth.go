package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mamadbah2/stockapp/internal/domain/models"
)

func (c *cli) loginCmd() *cobra.Command {
	var creds models.Credentials

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and keep the token locally",
		Long: `Sign in against the inventory API.

The password is read from --password or, when omitted, from STOCKCTL_PASSWORD.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if creds.Password == "" {
				creds.Password = os.Getenv("STOCKCTL_PASSWORD")
			}
			creds.Email = strings.TrimSpace(creds.Email)
			if creds.Email == "" || creds.Password == "" {
				return errors.New("email et mot de passe requis")
			}

			ctx := c.context(cmd)
			resp, err := c.client.Login(ctx, creds)
			if err != nil {
				return fmt.Errorf("connexion refusée: %w", err)
			}
			if err := c.sessions.SetToken(ctx, sessionID, resp.Token); err != nil {
				return err
			}

			name := creds.Email
			if resp.User != nil && resp.User.Name != "" {
				name = resp.User.Name
			}
			fmt.Fprintf(c.out, "Connecté en tant que %s\n", name)
			return nil
		},
	}
	cmd.Flags().StringVar(&creds.Email, "email", "", "Account email")
	cmd.Flags().StringVar(&creds.Password, "password", "", "Account password")
	return cmd
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the local token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.sessions.Clear(c.context(cmd), sessionID, "logout"); err != nil {
				return err
			}
			fmt.Fprintln(c.out, "Déconnecté")
			return nil
		},
	}
}
