package cli

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/chatsync-go/internal/models"
)

var (
	askSession    string
	askImage      bool
	askOutputFile string
	askDelete     bool
)

var askCmd = &cobra.Command{
	Use:   "ask <prompt>",
	Short: "Talk to the AI assistant",
	Long: `Send a prompt to an AI session and print the answer.

Without --session a new session is created. The first prompt of a session
becomes its title. Image sessions return a base64 encoded image which is
written to --output when given.

Examples:
  chatsync ask "Summarize the plot of Dune"
  chatsync ask --session 6510aa... "and the sequel?"
  chatsync ask --image "a fox in the snow" -o fox.png
  chatsync ask --session 6510aa... --delete`,
	Args: func(cmd *cobra.Command, args []string) error {
		if askDelete {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.MinimumNArgs(1)(cmd, args)
	},
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askSession, "session", "s", "", "AI session id (default: create a new one)")
	askCmd.Flags().BoolVar(&askImage, "image", false, "generate an image instead of a text answer")
	askCmd.Flags().StringVarP(&askOutputFile, "output", "o", "", "write the generated image to file")
	askCmd.Flags().BoolVar(&askDelete, "delete", false, "delete the session given by --session")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	s, err := newSession(ctx, sessionOptions{assistant: !askDelete})
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.LoadRoster(ctx); err != nil {
		return fmt.Errorf("load roster: %w", err)
	}
	ai := s.Assistant()

	if askDelete {
		if askSession == "" {
			return fmt.Errorf("--delete requires --session")
		}
		if err := ai.DeleteSession(ctx, askSession); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		fmt.Printf("Deleted session %s\n", askSession)
		return nil
	}

	var sess *models.AiSession
	if askSession == "" {
		kind := models.SessionText
		if askImage {
			kind = models.SessionImage
		}
		if sess, err = ai.CreateSession(ctx, kind); err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		fmt.Println(defaultTheme.hintStyle().Render("New session " + sess.ID))
	} else if err := ai.Select(askSession); err != nil {
		return err
	}

	prompt := strings.Join(args, " ")
	if askImage {
		err = ai.GenerateImage(ctx, prompt)
	} else {
		err = ai.Ask(ctx, prompt)
	}
	if err != nil {
		return err
	}

	active, ok := s.Store().Active().(*models.AiSession)
	if !ok || len(active.Messages) == 0 {
		return fmt.Errorf("no answer recorded")
	}
	return printAnswer(active.Messages[len(active.Messages)-1])
}

func printAnswer(msg models.AiMessage) error {
	if msg.Role != models.RoleAssistant {
		return fmt.Errorf("no answer recorded")
	}
	if msg.ImageURL == "" {
		fmt.Println(msg.Content)
		return nil
	}

	if askOutputFile == "" {
		fmt.Printf("Image generated (%d bytes base64). Use -o to save it.\n", len(msg.ImageURL))
		return nil
	}
	data, err := base64.StdEncoding.DecodeString(msg.ImageURL)
	if err != nil {
		// Providers that return a URL instead of inline data
		fmt.Println(msg.ImageURL)
		return nil
	}
	if err := os.WriteFile(askOutputFile, data, 0o644); err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	fmt.Printf("%s %s\n", defaultTheme.completedStyle().Render("✓ Saved"), askOutputFile)
	return nil
}
