// Package services – ChatService
//
// This file implements the ChatService, the application-level component that
// owns conversation reads and writes over the append-only message store. It
// validates input, applies idempotent-send semantics for retried POSTs,
// projects the questions view, and exposes the moderation operations.
//
// Service-level errors (e.g., ErrMessageNotFound) are returned for
// predictable cases so handlers can map them to HTTP results consistently.
//
// Observability: public methods are OpenTelemetry-instrumented; spans include
// the conversation path and caller identifiers.
package services

import (
	"context"
	"errors"
	"net/http"
	"time"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/geniality/event-chat-backend/internal/composer"
	"github.com/geniality/event-chat-backend/internal/domain"
	"github.com/geniality/event-chat-backend/internal/repo"
	"github.com/geniality/event-chat-backend/internal/store"
	"github.com/geniality/event-chat-backend/internal/view"
)

// MessageStore is the store contract required by ChatService.
type MessageStore interface {
	FetchLatest(ctx context.Context, path string, limit int) ([]domain.Message, error)
	FetchOlderThan(ctx context.Context, path, beforeKey string, limit int) ([]domain.Message, error)
	Get(ctx context.Context, path, key string) (domain.Message, error)
	Append(ctx context.Context, path string, m domain.Message) (string, error)
	ToggleLike(ctx context.Context, path, key, voterID string) (domain.Message, error)
	Remove(ctx context.Context, path, key string) error
	Purge(ctx context.Context, path string) (int, error)
}

// ChatService coordinates conversation reads, sends, likes, and moderation.
type ChatService struct {
	// Store is the append log holding all conversations.
	Store MessageStore
	// DB is the GORM handle backing idempotency records. Nil disables
	// idempotent sends.
	DB *gorm.DB

	// PageSize is the default page length for reads.
	PageSize int
	// QuoteMaxRunes caps reply quotes by rune length.
	QuoteMaxRunes int
	// IdempotencyTTL bounds how long a send key shields against retries.
	IdempotencyTTL time.Duration
}

// NewChatService constructs a ChatService with the default limits.
func NewChatService(st MessageStore, db *gorm.DB) *ChatService {
	return &ChatService{
		Store:          st,
		DB:             db,
		PageSize:       store.DefaultPageSize,
		QuoteMaxRunes:  composer.DefaultQuoteMaxRunes,
		IdempotencyTTL: 24 * time.Hour,
	}
}

// ListMessages returns one page of a conversation in ascending key order.
// An empty beforeKey serves the newest page; otherwise the page strictly
// older than beforeKey.
func (s *ChatService) ListMessages(ctx context.Context, path, beforeKey string, limit int) ([]domain.Message, error) {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "ListMessages",
		trace.WithAttributes(
			attribute.String("chat.path", path),
			attribute.String("page.before", beforeKey),
		),
	)
	defer span.End()

	if limit <= 0 || limit > s.PageSize {
		limit = s.PageSize
	}
	if beforeKey == "" {
		return s.Store.FetchLatest(ctx, path, limit)
	}
	return s.Store.FetchOlderThan(ctx, path, beforeKey, limit)
}

// Questions returns the ranked questions projection over the newest window
// of the conversation.
func (s *ChatService) Questions(ctx context.Context, path, callerName, callerID string, limit int) (view.Projection, error) {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "Questions",
		trace.WithAttributes(attribute.String("chat.path", path)),
	)
	defer span.End()

	if limit <= 0 {
		limit = s.PageSize
	}
	msgs, err := s.Store.FetchLatest(ctx, path, limit)
	if err != nil {
		return view.Projection{}, err
	}
	return view.Project(msgs, view.Options{
		Mode:       view.ModeQuestions,
		CallerName: callerName,
		CallerID:   callerID,
	}), nil
}

// SendInput carries one send request.
//
// Fields:
//   - UserID:         caller identity, used for idempotency scoping
//   - Path:           conversation collection path
//   - IdempotencyKey: optional client retry key; empty disables the check
//   - Text:           message body
//   - Name:           display name; replaced by the pseudonym when Anonymous
//   - Anonymous:      send under the pseudonym
//   - AsQuestion:     send as a question instead of a plain message
//   - QuestionKey:    when set, the send is a threaded reply to this question
//   - QuotedKey:      optional message being answered inside the thread
type SendInput struct {
	UserID         string
	Path           string
	IdempotencyKey string
	Text           string
	Name           string
	Anonymous      bool
	AsQuestion     bool
	QuestionKey    string
	QuotedKey      string
}

// Send validates and appends one message. When an idempotency key is
// supplied and a non-expired record exists for (user, path, key), the
// already committed message is returned instead of appending again.
func (s *ChatService) Send(ctx context.Context, in SendInput) (*domain.Message, error) {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "Send",
		trace.WithAttributes(
			attribute.String("chat.path", in.Path),
			attribute.String("user.id", in.UserID),
		),
	)
	defer span.End()

	if prev, ok := s.replayIdempotent(ctx, in); ok {
		return prev, nil
	}

	comp := composer.New(s.Store, in.Path, composer.DisplayName(in.Name, in.Anonymous), false)
	comp.QuoteMaxRunes = s.QuoteMaxRunes

	key, err := s.compose(ctx, comp, in)
	if err != nil {
		return nil, mapComposerErr(err)
	}

	if in.IdempotencyKey != "" && s.DB != nil {
		// Best effort: a failed record insert must not fail the committed send.
		_, _ = repo.CreateIdempotency(ctx, s.DB, in.UserID, in.Path, in.IdempotencyKey, key, http.StatusCreated, s.IdempotencyTTL)
	}

	m, err := s.Store.Get(ctx, in.Path, key)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// compose routes the input to the right composer payload.
func (s *ChatService) compose(ctx context.Context, comp *composer.Composer, in SendInput) (string, error) {
	if in.QuestionKey != "" {
		question, err := s.Store.Get(ctx, in.Path, in.QuestionKey)
		if err != nil {
			return "", err
		}
		var quoted *domain.Message
		if in.QuotedKey != "" {
			if qm, qerr := s.Store.Get(ctx, in.Path, in.QuotedKey); qerr == nil {
				quoted = &qm
			}
		}
		return comp.SendReply(ctx, question, in.Text, quoted)
	}
	if in.AsQuestion {
		return comp.SendQuestion(ctx, in.Text)
	}
	return comp.SendMessage(ctx, in.Text)
}

// replayIdempotent returns the previously committed message for a retried
// send key, when one exists and still resolves.
func (s *ChatService) replayIdempotent(ctx context.Context, in SendInput) (*domain.Message, bool) {
	if in.IdempotencyKey == "" || s.DB == nil {
		return nil, false
	}
	rec, err := repo.GetIdempotency(ctx, s.DB, in.UserID, in.Path, in.IdempotencyKey, time.Now().UTC())
	if err != nil || rec.MessageKey == "" {
		return nil, false
	}
	m, err := s.Store.Get(ctx, in.Path, rec.MessageKey)
	if err != nil {
		// The original message was moderated away; fall through to a fresh send.
		return nil, false
	}
	return &m, true
}

// ToggleLike flips the voter's like on a question.
func (s *ChatService) ToggleLike(ctx context.Context, path, key, voterID string) (*domain.Message, error) {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "ToggleLike",
		trace.WithAttributes(
			attribute.String("chat.path", path),
			attribute.String("message.key", key),
		),
	)
	defer span.End()

	m, err := s.Store.ToggleLike(ctx, path, key, voterID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return &m, nil
}

// Remove deletes one message (moderation).
func (s *ChatService) Remove(ctx context.Context, path, key string) error {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "Remove",
		trace.WithAttributes(
			attribute.String("chat.path", path),
			attribute.String("message.key", key),
		),
	)
	defer span.End()

	return mapStoreErr(s.Store.Remove(ctx, path, key))
}

// Purge deletes an entire conversation (moderation) and reports how many
// messages were removed.
func (s *ChatService) Purge(ctx context.Context, path string) (int, error) {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "Purge",
		trace.WithAttributes(attribute.String("chat.path", path)),
	)
	defer span.End()

	return s.Store.Purge(ctx, path)
}

// mapStoreErr translates store sentinels into service sentinels.
func mapStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrMessageNotFound):
		return ErrMessageNotFound
	case errors.Is(err, store.ErrNotAQuestion):
		return ErrNotAQuestion
	case errors.Is(err, store.ErrLikeConflict):
		return ErrLikeConflict
	default:
		return err
	}
}

// mapComposerErr translates composer sentinels into service sentinels.
func mapComposerErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, composer.ErrEmptyText):
		return ErrEmptyMessage
	case errors.Is(err, composer.ErrNotAQuestion):
		return ErrNotAQuestion
	case errors.Is(err, store.ErrMessageNotFound):
		return ErrMessageNotFound
	default:
		return err
	}
}
