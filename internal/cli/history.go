package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	historyTarget targetFlags
	historyLimit  int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the message history of a conversation",
	Long: `Print the message history with a contact or in a channel.

Examples:
  chatsync history --contact 64f1c2...
  chatsync history --channel 650a9e... -n 20`,
	RunE: runHistory,
}

func init() {
	historyTarget.register(historyCmd, true)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 50, "show only the last n messages (0 for all)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	s, err := newSession(ctx, sessionOptions{})
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.LoadRoster(ctx); err != nil {
		return fmt.Errorf("load roster: %w", err)
	}
	target, err := historyTarget.resolve(s)
	if err != nil {
		return err
	}

	if err := <-s.Open(ctx, target); err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	msgs := s.Store().Messages()
	if len(msgs) == 0 {
		fmt.Println("No messages.")
		return nil
	}
	if historyLimit > 0 && len(msgs) > historyLimit {
		fmt.Println(defaultTheme.hintStyle().Render(fmt.Sprintf("... %d earlier messages", len(msgs)-historyLimit)))
		msgs = msgs[len(msgs)-historyLimit:]
	}
	for _, m := range msgs {
		fmt.Println(formatMessage(s, m))
	}
	return nil
}
