package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	sendTarget targetFlags
	sendWait   time.Duration
)

var sendCmd = &cobra.Command{
	Use:   "send <text>",
	Short: "Send a text message",
	Long: `Send a text message to a contact or a channel.

The command waits until the server echoes the message back.

Examples:
  chatsync send --contact 64f1c2... "see you at 5"
  chatsync send --channel 650a9e... hello everyone`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

func init() {
	sendTarget.register(sendCmd, true)
	sendCmd.Flags().DurationVar(&sendWait, "wait", 5*time.Second, "how long to wait for the server echo")
}

func runSend(cmd *cobra.Command, args []string) error {
	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" {
		return fmt.Errorf("message text is empty")
	}
	ctx := context.Background()

	s, err := newSession(ctx, sessionOptions{connect: true})
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.LoadRoster(ctx); err != nil {
		return fmt.Errorf("load roster: %w", err)
	}
	target, err := sendTarget.resolve(s)
	if err != nil {
		return err
	}
	s.Store().SelectTarget(target)

	n := len(s.Store().Messages())
	if err := s.SendText(text); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	if !waitForMessage(s, n, sendWait) {
		return fmt.Errorf("no confirmation from server after %s", sendWait)
	}

	fmt.Println(defaultTheme.completedStyle().Render("✓ Sent"))
	return nil
}
