package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/chatsync-go/internal/call"
	"github.com/raphaelgruber/chatsync-go/internal/models"
	"github.com/raphaelgruber/chatsync-go/internal/session"
)

const hangupFlush = 200 * time.Millisecond

var (
	callAnswer   bool
	callPresence time.Duration
)

var callCmd = &cobra.Command{
	Use:   "call [contactId]",
	Short: "Place or answer a video call",
	Long: `Place a video call to an online contact, or wait for and answer an
incoming call with --answer. Ctrl+C hangs up.

Examples:
  chatsync call 64f1c2...
  chatsync call --answer`,
	Args: func(cmd *cobra.Command, args []string) error {
		if callAnswer {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(1)(cmd, args)
	},
	RunE: runCall,
}

func init() {
	callCmd.Flags().BoolVar(&callAnswer, "answer", false, "wait for an incoming call and answer it")
	callCmd.Flags().DurationVar(&callPresence, "presence-timeout", 5*time.Second, "how long to wait for the contact to show up online")
}

func runCall(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := newSession(ctx, sessionOptions{connect: true, media: true})
	if err != nil {
		return err
	}
	defer s.Close()

	calls := s.Calls()
	states := make(chan call.State, 16)
	unlisten := calls.Listen(func(st call.State) {
		// Keep the newest states when the reader falls behind.
		for {
			select {
			case states <- st:
				return
			default:
				select {
				case <-states:
				default:
				}
			}
		}
	})
	defer unlisten()

	if callAnswer {
		fmt.Println(defaultTheme.hintStyle().Render("Waiting for a call... Press Ctrl+C to stop"))
		if err := waitForStatus(ctx, states, call.StatusRinging); err != nil {
			return nil
		}
		if err := calls.AnswerCall(ctx); err != nil {
			return fmt.Errorf("answer: %w", err)
		}
	} else {
		if err := s.LoadRoster(ctx); err != nil {
			return fmt.Errorf("load roster: %w", err)
		}
		contact := resolveCallee(s, args[0])
		if !waitOnline(ctx, s, contact.ID, callPresence) {
			return fmt.Errorf("call %s: %w", contact.DisplayName(), call.ErrPeerOffline)
		}
		if err := calls.CallUser(ctx, contact); err != nil {
			return fmt.Errorf("call: %w", err)
		}
		fmt.Printf("%s Calling %s... Press Ctrl+C to hang up\n",
			defaultTheme.statusStyle().Render("☎"), contact.DisplayName())
	}

	return followCall(ctx, calls, states)
}

// followCall prints call progress until the call ends, hanging up when ctx
// is cancelled.
func followCall(ctx context.Context, calls *call.Coordinator, states <-chan call.State) error {
	connected := false
	for {
		select {
		case <-ctx.Done():
			if err := calls.LeaveCall(); err != nil {
				return fmt.Errorf("hang up: %w", err)
			}
			// the hangup is queued on the socket; give the write pump a moment
			time.Sleep(hangupFlush)
			fmt.Println(defaultTheme.hintStyle().Render("Hung up."))
			return nil

		case st := <-states:
			switch st.Status {
			case call.StatusInCall:
				if !connected {
					connected = true
					fmt.Println(defaultTheme.completedStyle().Render("✓ Connected"))
				}
			case call.StatusIdle:
				if connected {
					fmt.Printf("Call ended after %s\n", st.Duration.Round(time.Second))
				} else {
					fmt.Println(defaultTheme.errorStyle().Render("✗ Call was not answered"))
				}
				return nil
			}
		}
	}
}

func waitForStatus(ctx context.Context, states <-chan call.State, want call.Status) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case st := <-states:
			if st.Status == want {
				return nil
			}
		}
	}
}

// waitOnline polls presence until id is online or the timeout passes. The
// online list arrives shortly after connecting.
func waitOnline(ctx context.Context, s *session.Session, id string, timeout time.Duration) bool {
	deadline := time.After(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if s.Presence().IsOnline(id) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-deadline:
			return false
		case <-ticker.C:
		}
	}
}

func resolveCallee(s *session.Session, id string) models.User {
	if c, ok := s.Store().Contact(id); ok {
		return c.User
	}
	return models.User{ID: id}
}
