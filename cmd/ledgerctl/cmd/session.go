package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	loginEmail    string
	loginPassword string
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the user the current session belongs to",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := application.Whoami(cmd.Context())
		if err != nil {
			return err
		}
		if !id.Authenticated {
			pterm.Warning.Println("Not logged in")
			return nil
		}
		pterm.DefaultSection.Println("Session")
		pterm.Info.Printf("User: %s <%s> (id %d)\n", id.DisplayName, id.Email, id.ID)
		if exp := application.Credentials.Snapshot().ExpiresAt; !exp.IsZero() {
			pterm.Info.Printf("Session expires at: %s\n", exp.Format(time.RFC1123))
		}
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and keep the session for later commands",
	RunE: func(cmd *cobra.Command, args []string) error {
		email := strings.TrimSpace(loginEmail)
		if email == "" {
			return fmt.Errorf("--email is required")
		}
		password := loginPassword
		if password == "" {
			password = os.Getenv("SHAREDLEDGER_PASSWORD")
		}
		if password == "" {
			var err error
			password, err = pterm.DefaultInteractiveTextInput.WithMask("*").Show("Password")
			if err != nil {
				return err
			}
		}

		spinner, _ := pterm.DefaultSpinner.Start("Logging in...")
		id, err := application.Session.Login(cmd.Context(), email, password)
		if err != nil {
			if spinner != nil {
				spinner.Fail("Login failed")
			}
			return err
		}
		if spinner != nil {
			spinner.Success(fmt.Sprintf("Logged in as %s", id.DisplayName))
		}
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session and forget stored credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := application.Session.Logout(cmd.Context()); err != nil {
			pterm.Warning.Printf("Server logout failed: %v\n", err)
		}
		pterm.Success.Println("Logged out")
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "Account email")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "Account password (prompted when empty; also SHAREDLEDGER_PASSWORD)")
}
