package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/raphaelgruber/chatsync-go/internal/auth"
	"github.com/raphaelgruber/chatsync-go/internal/client"
)

var (
	loginEmail    string
	loginPassword string
	loginQuiet    bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and print the session token",
	Long: `Sign in with email and password.

The session token is printed so it can be exported as CHATSYNC_TOKEN or
passed with --token to the other commands. Without --password the password
is read from the terminal.

Examples:
  chatsync login --email ana@example.com
  chatsync login --email ana@example.com --password secret
  export CHATSYNC_TOKEN=$(chatsync login --email ana@example.com --password secret -q)`,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the server session for the current token",
	RunE:  runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the identity behind the current token",
	RunE:  runWhoami,
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "account email (required)")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "account password (prompted when omitted)")
	loginCmd.Flags().BoolVarP(&loginQuiet, "quiet", "q", false, "print only the token")
	_ = loginCmd.MarkFlagRequired("email")
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	password := loginPassword
	if password == "" {
		var err error
		if password, err = readPassword(); err != nil {
			return err
		}
	}

	res, err := restClient.Login(ctx, strings.TrimSpace(loginEmail), password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	token := restClient.Token()
	if token == "" {
		return fmt.Errorf("login: server did not set a %q cookie", client.CookieName)
	}

	if loginQuiet {
		fmt.Println(token)
		return nil
	}

	fmt.Printf("%s Signed in as %s (%s)\n",
		defaultTheme.completedStyle().Render("✓"), res.User.DisplayName(), res.User.ID)
	if !res.ProfileSetup {
		fmt.Println(defaultTheme.hintStyle().Render("Profile setup is not complete."))
	}
	fmt.Printf("\nToken: %s\n", token)
	return nil
}

// readPassword prompts on stderr so the token can still be captured from
// stdout.
func readPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("--password is required when stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, "Password: ")
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	if err := restClient.Logout(context.Background()); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	fmt.Println("Signed out.")
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	claims, err := auth.FromJar(restClient.Jar(), restClient.BaseURL(), client.CookieName)
	if err != nil {
		return err
	}

	fmt.Printf("User ID: %s\n", claims.Identity())
	if claims.Email != "" {
		fmt.Printf("Email:   %s\n", claims.Email)
	}
	if claims.ExpiresAt != nil {
		left := time.Until(claims.ExpiresAt.Time).Round(time.Minute)
		fmt.Printf("Expires: %s (in %s)\n", claims.ExpiresAt.Format(time.RFC3339), left)
	}
	return nil
}
