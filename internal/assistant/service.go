// Package assistant runs conversations with the AI assistant inside the
// chat's AI sessions.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/raphaelgruber/chatsync-go/internal/metrics"
	"github.com/raphaelgruber/chatsync-go/internal/models"
	"github.com/raphaelgruber/chatsync-go/internal/store"
)

// Apology is the assistant reply stored when the completer fails.
const Apology = "Sorry, I couldn't process your request."

// Default titles of new sessions.
const (
	TitleText  = "New Chat"
	TitleImage = "Create new image"
)

var (
	// ErrNoSession is returned when no AI session is selected.
	ErrNoSession = errors.New("no AI session selected")

	// ErrEmptyPrompt is returned for blank prompts.
	ErrEmptyPrompt = errors.New("empty prompt")

	// ErrNoImager is returned when image generation is not configured.
	ErrNoImager = errors.New("image generation not configured")
)

// Completer answers a conversation.
type Completer interface {
	Complete(ctx context.Context, conversation []models.AiMessage) (string, error)
}

// Imager turns a prompt into an image reference.
type Imager interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Persister stores sessions and turns on the server.
type Persister interface {
	CreateAiSession(ctx context.Context, title string, kind models.SessionType) (*models.AiSession, error)
	AddAiMessage(ctx context.Context, sessionID string, msg models.AiMessage, updateTitle *bool) error
	DeleteAiSession(ctx context.Context, sessionID string) error
}

// Service applies assistant turns to the store and persists them.
type Service struct {
	store     *store.Store
	persist   Persister
	completer Completer
	imager    Imager
	metrics   *metrics.Collector
	logger    *slog.Logger
}

// Options configures a Service. Completer and Imager may be nil; the
// matching operations then fail.
type Options struct {
	Store     *store.Store
	Persister Persister
	Completer Completer
	Imager    Imager
	Metrics   *metrics.Collector
	Logger    *slog.Logger
}

// New creates a Service.
func New(opts Options) *Service {
	if opts.Store == nil || opts.Persister == nil {
		panic("assistant: nil store or persister")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		store:     opts.Store,
		persist:   opts.Persister,
		completer: opts.Completer,
		imager:    opts.Imager,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
	}
}

// CreateSession creates a session of the given kind, adds it to the roster
// and selects it.
func (s *Service) CreateSession(ctx context.Context, kind models.SessionType) (*models.AiSession, error) {
	title := TitleText
	if kind == models.SessionImage {
		title = TitleImage
	}
	sess, err := s.persist.CreateAiSession(ctx, title, kind)
	if err != nil {
		return nil, err
	}
	s.store.UpsertAiSession(sess)
	s.store.SelectTarget(sess)
	return sess, nil
}

// DeleteSession removes a session on the server and from the roster,
// closing it when it was open.
func (s *Service) DeleteSession(ctx context.Context, id string) error {
	if id == "" {
		return ErrNoSession
	}
	if err := s.persist.DeleteAiSession(ctx, id); err != nil {
		return err
	}
	s.store.RemoveAiSession(id)
	return nil
}

// Select opens the roster session with id.
func (s *Service) Select(id string) error {
	sess, ok := s.store.AiSession(id)
	if !ok {
		return fmt.Errorf("select session %s: %w", id, ErrNoSession)
	}
	s.store.SelectTarget(sess)
	return nil
}

// Ask sends prompt to the selected session, generating an image for image
// sessions and a text reply otherwise.
func (s *Service) Ask(ctx context.Context, prompt string) error {
	sess, err := s.selected()
	if err != nil {
		return err
	}
	if sess.SessionType == models.SessionImage {
		return s.GenerateImage(ctx, prompt)
	}
	return s.SendText(ctx, prompt)
}

// SendText adds a user turn to the selected session and appends the
// assistant's answer. The answer always goes to the session that was
// selected when the prompt was sent.
func (s *Service) SendText(ctx context.Context, prompt string) error {
	if s.completer == nil {
		return fmt.Errorf("send text: no completer configured")
	}
	id, err := s.submit(ctx, prompt)
	if err != nil {
		return err
	}

	conversation := s.conversation(id)
	start := time.Now()
	reply, err := s.completer.Complete(ctx, conversation)
	s.metrics.RecordTiming(metrics.OpLLMComplete, time.Since(start), err)
	if err != nil {
		s.logger.Warn("completion failed", "session", id, "error", err)
		reply = Apology
	}

	return s.reply(ctx, id, models.AiMessage{Role: models.RoleAssistant, Content: reply})
}

// GenerateImage adds a user turn and appends the generated image. No
// assistant turn is added when generation fails.
func (s *Service) GenerateImage(ctx context.Context, prompt string) error {
	if s.imager == nil {
		return ErrNoImager
	}
	id, err := s.submit(ctx, prompt)
	if err != nil {
		return err
	}

	start := time.Now()
	img, err := s.imager.Generate(ctx, strings.TrimSpace(prompt))
	s.metrics.RecordTiming(metrics.OpLLMImage, time.Since(start), err)
	if err != nil {
		s.logger.Warn("image generation failed", "session", id, "error", err)
		return fmt.Errorf("generate image: %w", err)
	}

	return s.reply(ctx, id, models.AiMessage{
		Role:        models.RoleAssistant,
		ImageURL:    img,
		MessageType: models.MessageImage,
	})
}

// submit records the user's turn and returns the session id it went to.
// The first prompt of a session becomes its title.
func (s *Service) submit(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", ErrEmptyPrompt
	}
	sess, err := s.selected()
	if err != nil {
		return "", err
	}

	titled := sess.IsUpdateTitle
	if !titled {
		s.store.SetAiSessionTitle(sess.ID, prompt)
	}

	msg := models.AiMessage{Role: models.RoleUser, Content: prompt}
	s.store.AppendAiMessage(sess.ID, msg)

	if err := s.persist.AddAiMessage(ctx, sess.ID, msg, &titled); err != nil {
		return "", fmt.Errorf("persist prompt: %w", err)
	}
	return sess.ID, nil
}

func (s *Service) reply(ctx context.Context, id string, msg models.AiMessage) error {
	s.store.AppendAiMessage(id, msg)
	if err := s.persist.AddAiMessage(ctx, id, msg, nil); err != nil {
		return fmt.Errorf("persist reply: %w", err)
	}
	return nil
}

func (s *Service) selected() (*models.AiSession, error) {
	sess, ok := s.store.Active().(*models.AiSession)
	if !ok || sess == nil || sess.ID == "" {
		return nil, ErrNoSession
	}
	return sess, nil
}

// conversation returns the turns of session id, preferring the open copy.
func (s *Service) conversation(id string) []models.AiMessage {
	if sess, ok := s.store.Active().(*models.AiSession); ok && sess.ID == id {
		return sess.Messages
	}
	if sess, ok := s.store.AiSession(id); ok {
		return sess.Messages
	}
	return nil
}
