// Conversation HTTP handlers: wiring and shared contracts.
//
// This file declares the service interfaces consumed by the HTTP layer and the
// Handlers aggregate that binds them to Gin routes. Endpoints live in their
// own files (message_handler.go, stream_handler.go, whatsapp_handler.go).
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses.
package handlers

import (
	"context"
	"io"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/geniality/event-chat-backend/internal/domain"
	"github.com/geniality/event-chat-backend/internal/services"
	"github.com/geniality/event-chat-backend/internal/view"
)

//
// Service contracts (context-aware)
//

// ConversationService defines conversation operations consumed by HTTP
// handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type ConversationService interface {
	// ListMessages returns one ascending page; empty beforeKey means the
	// newest page, otherwise the page strictly older than beforeKey.
	ListMessages(ctx context.Context, path, beforeKey string, limit int) ([]domain.Message, error)
	// Questions returns the ranked questions projection for a conversation.
	Questions(ctx context.Context, path, callerName, callerID string, limit int) (view.Projection, error)
	// Send validates and appends one message, honoring idempotency keys.
	Send(ctx context.Context, in services.SendInput) (*domain.Message, error)
	// ToggleLike flips the voter's like on a question.
	ToggleLike(ctx context.Context, path, key, voterID string) (*domain.Message, error)
	// Remove deletes one message (moderation).
	Remove(ctx context.Context, path, key string) error
	// Purge deletes an entire conversation (moderation).
	Purge(ctx context.Context, path string) (int, error)
}

// BulkSendService defines the WhatsApp bulk-send operations consumed by HTTP
// handlers.
type BulkSendService interface {
	// Template returns the upload template workbook.
	Template() ([]byte, error)
	// CreateBatch parses an uploaded workbook and queues its rows.
	CreateBatch(ctx context.Context, fileName string, r io.Reader) (*domain.SendBatch, error)
	// ListBatches returns all batches, newest first.
	ListBatches(ctx context.Context) ([]domain.SendBatch, error)
	// GetBatch returns one batch with its queued messages.
	GetBatch(ctx context.Context, id string) (*domain.SendBatch, []domain.OutboundMessage, error)
	// RunBatch drains one pending batch against the gateway.
	RunBatch(ctx context.Context, id string) (*domain.SendBatch, error)
	// Report renders the delivery outcome as an XLSX workbook.
	Report(ctx context.Context, id string) ([]byte, error)
}

// Streamer exposes the live event feed of a conversation.
type Streamer interface {
	// Subscribe returns a channel of committed events for path and a cancel
	// function. The channel closes on cancel, store shutdown, or when the
	// subscriber falls too far behind.
	Subscribe(path string) (<-chan domain.StreamEvent, func())
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for conversations, live streams, and bulk
// WhatsApp sends. It depends on abstract service interfaces to keep transport
// concerns separate from business logic.
type Handlers struct {
	chatSvc  ConversationService
	waSvc    BulkSendService
	streamer Streamer
}

// New constructs and returns a Handlers instance bound to the given services.
func New(chatSvc ConversationService, waSvc BulkSendService, streamer Streamer) *Handlers {
	return &Handlers{chatSvc: chatSvc, waSvc: waSvc, streamer: streamer}
}

// userID extracts the authenticated user id from Gin context (set by upstream
// middleware). If absent, it falls back to "X-User-ID" header (tests use it),
// and finally to "demo-user". It never touches c.Request if it's nil.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "demo-user"
}

// conversationPath resolves the message collection addressed by the route
// parameters. Routes carrying a :chatId select the caller's private
// conversation; the rest address the event-wide public one.
func conversationPath(c *gin.Context) string {
	chatID := c.Param("chatId")
	uid := ""
	if chatID != "" {
		uid = userID(c)
	}
	return domain.ConversationPath(c.Param("eventId"), chatID, uid)
}
