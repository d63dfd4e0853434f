// Package cli provides the command-line interface for chatsync.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/chatsync-go/internal/assistant"
	"github.com/raphaelgruber/chatsync-go/internal/auth"
	"github.com/raphaelgruber/chatsync-go/internal/call"
	"github.com/raphaelgruber/chatsync-go/internal/client"
	"github.com/raphaelgruber/chatsync-go/internal/config"
	"github.com/raphaelgruber/chatsync-go/internal/llm"
	"github.com/raphaelgruber/chatsync-go/internal/metrics"
	"github.com/raphaelgruber/chatsync-go/internal/session"
	"github.com/raphaelgruber/chatsync-go/internal/socket"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose     bool
	serverFlag  string
	tokenFlag   string
	connectWait time.Duration

	// Global config, logger and REST client
	cfg        config.Config
	logger     *slog.Logger
	logCleanup func() error
	restClient *client.Client
	stats      *metrics.Collector
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "chatsync",
	Short: "Terminal client for the realtime chat server",
	Long: `Chatsync connects to the chat server from the terminal.

It keeps one realtime connection per signed-in user, loads conversation
history over REST, talks to the AI assistant and can place video calls.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip setup for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if serverFlag != "" {
			cfg.ServerURL = serverFlag
		}
		if tokenFlag != "" {
			cfg.Token = tokenFlag
		}

		level := cfg.LogLevel
		if verbose {
			level = slog.LevelDebug
		}
		logger, logCleanup = config.SetupLogger(cfg.LogFile, level, !verbose)

		stats = metrics.NewCollector()
		restClient, err = client.New(cfg.ServerURL,
			client.WithTimeout(cfg.ClientTimeout),
			client.WithMetrics(stats),
		)
		if err != nil {
			return err
		}
		if cfg.Token != "" {
			restClient.SetToken(cfg.Token)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCleanup != nil {
			if err := logCleanup(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
			}
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "", "chat server URL (overrides CHATSYNC_SERVER_URL)")
	rootCmd.PersistentFlags().StringVar(&tokenFlag, "token", "", "session token (overrides CHATSYNC_TOKEN)")
	rootCmd.PersistentFlags().DurationVar(&connectWait, "connect-timeout", 10*time.Second, "how long to wait for the realtime connection")

	// Add subcommands
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(contactsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(callCmd)
}

// sessionOptions controls which optional collaborators newSession wires.
type sessionOptions struct {
	assistant bool
	media     bool
	connect   bool
}

// newSession builds a session for the signed-in user. With connect set it
// waits until the realtime connection is up.
func newSession(ctx context.Context, opts sessionOptions) (*session.Session, error) {
	if _, err := auth.FromJar(restClient.Jar(), restClient.BaseURL(), client.CookieName); err != nil {
		if errors.Is(err, auth.ErrNoSession) {
			return nil, fmt.Errorf("not logged in: run 'chatsync login' or set CHATSYNC_TOKEN")
		}
		return nil, err
	}

	user, err := restClient.UserInfo(ctx)
	if err != nil {
		return nil, err
	}

	sopts := session.Options{
		SocketURL:        cfg.SocketURL(),
		Client:           restClient,
		Peers:            call.NewPionFactory(cfg.STUNURLs, logger.With("component", "webrtc")),
		HandshakeTimeout: cfg.HandshakeTimeout,
		Notice:           func(msg string) { fmt.Fprintln(os.Stderr, defaultTheme.hintStyle().Render(msg)) },
		Metrics:          stats,
		Logger:           logger,
	}
	if opts.media {
		sopts.Media = call.TrackSource{}
	}
	if opts.assistant {
		completer, imager, err := assistantBackends(ctx)
		if err != nil {
			return nil, err
		}
		sopts.Completer, sopts.Imager = completer, imager
	}

	s, err := session.New(sopts)
	if err != nil {
		return nil, err
	}
	s.Store().SetLocalUser(user)

	if !opts.connect {
		return s, nil
	}

	connected := make(chan struct{}, 1)
	unwatch := s.Watch(func(c *socket.Conn) {
		if c != nil {
			select {
			case connected <- struct{}{}:
			default:
			}
		}
	})
	defer unwatch()

	s.SetIdentity(ctx, user)
	select {
	case <-connected:
		return s, nil
	case <-time.After(connectWait):
		s.Close()
		return nil, fmt.Errorf("realtime connection not established after %s", connectWait)
	case <-ctx.Done():
		s.Close()
		return nil, ctx.Err()
	}
}

// assistantBackends creates the completer and, when an OpenAI key is set,
// the image generator.
func assistantBackends(ctx context.Context) (assistant.Completer, assistant.Imager, error) {
	model, err := llm.NewModel(ctx, cfg, stats)
	if err != nil {
		return nil, nil, fmt.Errorf("init model: %w", err)
	}
	gen, err := llm.NewImageGenerator(cfg)
	if err != nil {
		logger.Debug("image generation disabled", "error", err)
		return model, nil, nil
	}
	return model, gen, nil
}
