package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/chatsync-go/internal/call"
	"github.com/raphaelgruber/chatsync-go/internal/session"
	"github.com/raphaelgruber/chatsync-go/internal/socket"
	"github.com/raphaelgruber/chatsync-go/internal/store"
)

const presenceInterval = 2 * time.Second

var (
	listenTarget targetFlags
	listenStats  bool
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Stream incoming messages and presence until Ctrl+C",
	Long: `Connect and print incoming activity until interrupted.

With --contact or --channel the conversation is opened and its new messages
are printed. Without one, roster activity and presence changes are shown.

Examples:
  chatsync listen
  chatsync listen --channel 650a9e...
  chatsync listen --contact 64f1c2... --stats`,
	RunE: runListen,
}

func init() {
	listenTarget.register(listenCmd, false)
	listenCmd.Flags().BoolVar(&listenStats, "stats", false, "print client statistics on exit")
}

func runListen(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := newSession(ctx, sessionOptions{connect: true})
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.LoadRoster(ctx); err != nil {
		return fmt.Errorf("load roster: %w", err)
	}

	if listenTarget.set() {
		target, err := listenTarget.resolve(s)
		if err != nil {
			return err
		}
		if err := <-s.Open(ctx, target); err != nil {
			return fmt.Errorf("load history: %w", err)
		}
	}

	unlisten := s.Store().Listen(newActivityPrinter(s).onChange)
	defer unlisten()

	unwatch := s.Watch(func(c *socket.Conn) {
		if c == nil {
			fmt.Println(defaultTheme.errorStyle().Render("✗ Disconnected"))
			stop()
		}
	})
	defer unwatch()

	unlistenCalls := s.Calls().Listen(func(st call.State) {
		if st.Status == call.StatusRinging && st.Remote != nil {
			fmt.Printf("%s %s is calling\n", defaultTheme.statusStyle().Render("☎"), st.Remote.DisplayName())
		}
	})
	defer unlistenCalls()

	fmt.Println(defaultTheme.completedStyle().Render("✓ Connected") + " " +
		defaultTheme.hintStyle().Render("Press Ctrl+C to stop"))

	watchPresence(ctx, s)

	if listenStats {
		fmt.Println()
		printClientStats(s.Metrics())
	}
	return nil
}

// activityPrinter prints messages appended since the last change and
// roster growth.
type activityPrinter struct {
	s *session.Session

	mu       sync.Mutex
	printed  int
	contacts int
	channels int
}

func newActivityPrinter(s *session.Session) *activityPrinter {
	st := s.Store().Snapshot()
	return &activityPrinter{
		s:        s,
		printed:  len(st.Messages),
		contacts: len(st.Contacts),
		channels: len(st.Channels),
	}
}

func (p *activityPrinter) onChange(c store.Change) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch c {
	case store.ChangeMessages:
		msgs := p.s.Store().Messages()
		if len(msgs) < p.printed {
			p.printed = 0
		}
		for _, m := range msgs[p.printed:] {
			fmt.Println(formatMessage(p.s, m))
		}
		p.printed = len(msgs)

	case store.ChangeContacts:
		st := p.s.Store().Snapshot()
		if len(st.Contacts) > 0 && len(st.Contacts) != p.contacts {
			fmt.Println(defaultTheme.hintStyle().Render("activity from " + st.Contacts[0].DisplayName()))
		}
		p.contacts = len(st.Contacts)

	case store.ChangeChannels:
		st := p.s.Store().Snapshot()
		if len(st.Channels) > p.channels {
			fmt.Println(defaultTheme.hintStyle().Render("added to channel " + st.Channels[0].Name))
		}
		p.channels = len(st.Channels)
	}
}

// watchPresence prints who came online or went offline until ctx ends.
func watchPresence(ctx context.Context, s *session.Session) {
	ticker := time.NewTicker(presenceInterval)
	defer ticker.Stop()

	var last []string
	for {
		online := s.Presence().Snapshot()
		for _, id := range online {
			if _, found := slices.BinarySearch(last, id); !found {
				fmt.Printf("%s %s\n", defaultTheme.completedStyle().Render("●"), presenceName(s, id))
			}
		}
		for _, id := range last {
			if _, found := slices.BinarySearch(online, id); !found {
				fmt.Printf("%s %s\n", defaultTheme.hintStyle().Render("○"), presenceName(s, id))
			}
		}
		last = online

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func presenceName(s *session.Session, id string) string {
	if me := s.Store().LocalUser(); me != nil && me.ID == id {
		return "me"
	}
	if c, ok := s.Store().Contact(id); ok {
		return c.DisplayName()
	}
	return id
}
