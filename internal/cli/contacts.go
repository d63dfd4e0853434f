package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/chatsync-go/internal/models"
)

var contactsAll bool

var contactsCmd = &cobra.Command{
	Use:   "contacts",
	Short: "List contacts, channels and AI sessions",
	Long: `List the roster of the signed-in user.

Subcommands:
  search  Search all users by name or email

Examples:
  chatsync contacts
  chatsync contacts --all
  chatsync contacts search ana`,
	RunE: runContacts,
}

var contactsSearchCmd = &cobra.Command{
	Use:   "search <term>",
	Short: "Search all users by name or email",
	Args:  cobra.ExactArgs(1),
	RunE:  runContactsSearch,
}

func init() {
	contactsCmd.Flags().BoolVarP(&contactsAll, "all", "a", false, "list every user instead of DM contacts")
	contactsCmd.AddCommand(contactsSearchCmd)
}

func runContacts(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	s, err := newSession(ctx, sessionOptions{})
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.LoadRoster(ctx); err != nil {
		return fmt.Errorf("load roster: %w", err)
	}
	st := s.Store().Snapshot()

	contacts := st.Contacts
	if contactsAll {
		if contacts, err = restClient.AllContacts(ctx); err != nil {
			return fmt.Errorf("list contacts: %w", err)
		}
	}
	printContacts(contacts)

	fmt.Printf("\nChannels (%d):\n\n", len(st.Channels))
	for _, ch := range st.Channels {
		fmt.Printf("- %s  %s (%d members)\n", ch.ID, ch.Name, len(ch.Members))
		if verbose {
			for _, m := range ch.Members {
				fmt.Printf("    %s\n", m.DisplayName())
			}
		}
	}

	fmt.Printf("\nAI sessions (%d):\n\n", len(st.AiSessions))
	for _, a := range st.AiSessions {
		fmt.Printf("- %s  %s [%s]\n", a.ID, a.Title, a.SessionType)
	}

	return nil
}

func runContactsSearch(cmd *cobra.Command, args []string) error {
	contacts, err := restClient.SearchContacts(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("search contacts: %w", err)
	}
	if len(contacts) == 0 {
		fmt.Println("No users found.")
		return nil
	}
	printContacts(contacts)
	return nil
}

func printContacts(contacts []*models.Contact) {
	fmt.Printf("Contacts (%d):\n\n", len(contacts))
	for _, c := range contacts {
		fmt.Printf("- %s  %s\n", c.ID, c.DisplayName())
		if verbose && c.Email != "" {
			fmt.Printf("  %s\n", c.Email)
		}
	}
}
