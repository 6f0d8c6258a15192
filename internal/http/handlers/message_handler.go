// Message HTTP handlers.
//
// This file exposes REST endpoints for conversation messages:
//   - GET    /events/{eventId}/.../messages            (page of messages, or questions view)
//   - POST   /events/{eventId}/.../messages            (send message, question, or reply)
//   - POST   /events/{eventId}/.../messages/{key}/like (toggle the caller's like)
//   - DELETE /events/{eventId}/.../messages/{key}      (moderation: remove one)
//   - DELETE /events/{eventId}/.../messages            (moderation: purge conversation)
//
// Handlers are transport-thin:
//   - validate & normalize inputs (including newline and length constraints)
//   - delegate to application services (ConversationService)
//   - implement idempotency semantics for retried sends
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous committed
// send exists for (user, path, key), the handler returns that recorded message
// and sets `Idempotency-Replayed: true`.
package handlers

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/geniality/event-chat-backend/internal/domain"
	"github.com/geniality/event-chat-backend/internal/http/middleware"
	"github.com/geniality/event-chat-backend/internal/services"
	"github.com/geniality/event-chat-backend/internal/utils"
	"github.com/geniality/event-chat-backend/internal/view"
)

// maxMessageRunes caps message text at the edge; the composer enforces its
// own emptiness rule after trimming.
const maxMessageRunes = 2000

//
// DTOs
//

// SendMessageRequest is the JSON payload for sending a message.
//
// Text is normalized by the handler (line endings and excessive blank lines)
// before being passed to the service layer.
type SendMessageRequest struct {
	// Text is the message body. It must be non-empty after trimming.
	Text string `json:"text" binding:"required,min=1" example:"Hola a todos!"`
	// Name is the sender's display name.
	Name string `json:"name" example:"Ana"`
	// Anonymous replaces Name with the shared pseudonym.
	Anonymous bool `json:"anonymous"`
	// Question sends the message as an audience question.
	Question bool `json:"question"`
	// QuestionKey makes the send a threaded reply to that question.
	QuestionKey string `json:"question_key,omitempty"`
	// QuotedKey optionally marks which message the reply answers.
	QuotedKey string `json:"quoted_key,omitempty"`
}

// SendMessageResponse is the JSON envelope for a committed message.
type SendMessageResponse struct {
	// Message is the stored message with its server-assigned key and timestamp.
	Message *domain.Message `json:"message"`
}

// ListMessagesResponse contains one ascending page of a conversation.
//
// Clients page backwards by passing OldestKey as the next request's `before`
// query parameter; a page shorter than the requested limit means the top of
// the conversation was reached.
type ListMessagesResponse struct {
	Messages  []domain.Message `json:"messages"`
	Count     int              `json:"count"`
	OldestKey string           `json:"oldest_key,omitempty"`
}

// ProjectedMessage is one message annotated with presentation facts.
type ProjectedMessage struct {
	Message       domain.Message `json:"message"`
	Mine          bool           `json:"mine"`
	LikeCount     int            `json:"like_count"`
	LikedByCaller bool           `json:"liked_by_caller"`
	Highlighted   bool           `json:"highlighted,omitempty"`
}

// QuestionThread is a ranked question with its replies in ascending order.
type QuestionThread struct {
	Question ProjectedMessage   `json:"question"`
	Replies  []ProjectedMessage `json:"replies"`
}

// QuestionsResponse wraps the ranked questions view of a conversation.
type QuestionsResponse struct {
	Threads []QuestionThread `json:"threads"`
}

// PurgeResponse reports how many messages a purge removed.
type PurgeResponse struct {
	Removed int `json:"removed"`
}

//
// Helpers
//

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeText normalizes user text for consistent downstream behavior:
//   - converts CRLF/CR to LF,
//   - collapses runs of 3+ LFs to exactly two (paragraph separation),
//   - trims surrounding whitespace.
func sanitizeText(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// projectedMessage maps a view item to its transport shape.
func projectedMessage(it view.Item) ProjectedMessage {
	return ProjectedMessage{
		Message:       it.Message,
		Mine:          it.Mine,
		LikeCount:     it.LikeCount,
		LikedByCaller: it.LikedByCaller,
		Highlighted:   it.Highlighted,
	}
}

//
// Handlers
//

// ListMessages godoc
// @ID          listMessages
// @Summary     List conversation messages
// @Description Returns one ascending page of messages, newest page by default.
// @Description Pass `before` to fetch the page strictly older than that key, or
// @Description `view=questions` for the ranked questions projection.
// @Tags        Messages
// @Produce     json
//
// @Param       eventId  path   string  true  "Event ID"
// @Param       before   query  string  false "Serve the page strictly older than this key"
// @Param       limit    query  int     false "Page size"  minimum(1) default(40)
// @Param       view     query  string  false "Projection selector"  Enums(questions)
// @Param       name     query  string  false "Caller display name (marks own messages)"
//
// @Success     200  {object} handlers.ListMessagesResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /events/{eventId}/public/messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	path := conversationPath(c)
	limit := utils.AtoiDefault(c.Query("limit"), 0)

	if view.ModeFromParam(c.Query("view")) == view.ModeQuestions {
		p, err := h.chatSvc.Questions(ctx, path, strings.TrimSpace(c.Query("name")), userID(c), limit)
		if err != nil {
			fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
			return
		}
		resp := QuestionsResponse{Threads: make([]QuestionThread, 0, len(p.Threads))}
		for _, th := range p.Threads {
			qt := QuestionThread{
				Question: projectedMessage(th.Question),
				Replies:  make([]ProjectedMessage, 0, len(th.Replies)),
			}
			for _, rep := range th.Replies {
				qt.Replies = append(qt.Replies, projectedMessage(rep))
			}
			resp.Threads = append(resp.Threads, qt)
		}
		ok(c, http.StatusOK, resp)
		return
	}

	msgs, err := h.chatSvc.ListMessages(ctx, path, strings.TrimSpace(c.Query("before")), limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	resp := ListMessagesResponse{Messages: msgs, Count: len(msgs)}
	if len(msgs) > 0 {
		resp.OldestKey = msgs[0].Key
	}
	ok(c, http.StatusOK, resp)
}

// SendMessage godoc
// @ID          sendMessage
// @Summary     Send a message, question, or reply
// @Description Appends one message to the conversation and returns it with its
// @Description server-assigned key. Supports idempotency via the Idempotency-Key
// @Description header (same key → same committed message).
// @Tags        Messages
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  false "Caller identity"
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries"
// @Param       eventId          path    string  true  "Event ID"
// @Param       body             body    handlers.SendMessageRequest  true  "Message payload"
//
// @Success     201  {object}  handlers.SendMessageResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Referenced question not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /events/{eventId}/public/messages [post]
func (h *Handlers) SendMessage(c *gin.Context) {
	ctx := c.Request.Context()

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "text required")
		return
	}

	// Sanitize + early size cap to fail fast at the edge.
	text := sanitizeText(req.Text)
	if text == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "text required")
		return
	}
	if utf8.RuneCountInString(text) > maxMessageRunes {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("text too long: max %d runes", maxMessageRunes))
		return
	}

	idemKey, _ := middleware.GetIdempotencyKey(c)
	m, err := h.chatSvc.Send(ctx, services.SendInput{
		UserID:         userID(c),
		Path:           conversationPath(c),
		IdempotencyKey: idemKey,
		Text:           text,
		Name:           strings.TrimSpace(req.Name),
		Anonymous:      req.Anonymous,
		AsQuestion:     req.Question,
		QuestionKey:    req.QuestionKey,
		QuotedKey:      req.QuotedKey,
	})
	if err != nil {
		switch err {
		case services.ErrEmptyMessage:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "text required")
		case services.ErrMessageNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "question not found")
		case services.ErrNotAQuestion:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "replies must target a question")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeSendFailed, err.Error())
		}
		return
	}

	if middleware.IsReplay(c) {
		c.Header("Idempotency-Replayed", "true")
	}
	ok(c, http.StatusCreated, SendMessageResponse{Message: m})
}

// ToggleLike godoc
// @ID          toggleLike
// @Summary     Toggle the caller's like on a question
// @Description Adds or removes the caller's vote; the like count is recomputed
// @Description from the vote set on every toggle.
// @Tags        Messages
// @Produce     json
//
// @Param       X-User-ID  header  string  false "Caller identity (the vote key)"
// @Param       eventId    path    string  true  "Event ID"
// @Param       key        path    string  true  "Message key"
//
// @Success     200  {object}  handlers.SendMessageResponse  "Message after the toggle"
// @Failure     400  {object}  handlers.ErrorResponse        "Target is not a question"
// @Failure     404  {object}  handlers.ErrorResponse        "Message not found"
// @Failure     409  {object}  handlers.ErrorResponse        "Concurrent toggles kept colliding"
// @Router      /events/{eventId}/public/messages/{key}/like [post]
func (h *Handlers) ToggleLike(c *gin.Context) {
	m, err := h.chatSvc.ToggleLike(c.Request.Context(), conversationPath(c), c.Param("key"), userID(c))
	if err != nil {
		switch err {
		case services.ErrMessageNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "message not found")
		case services.ErrNotAQuestion:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "only questions can be liked")
		case services.ErrLikeConflict:
			fail(c, http.StatusConflict, ErrCodeConflict, "like toggle conflicted, retry")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, SendMessageResponse{Message: m})
}

// RemoveMessage godoc
// @ID          removeMessage
// @Summary     Remove one message (moderation)
// @Tags        Moderation
// @Produce     json
//
// @Param       eventId  path  string  true  "Event ID"
// @Param       key      path  string  true  "Message key"
//
// @Success     204  {string} string "No Content"
// @Failure     404  {object} handlers.ErrorResponse "Message not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /events/{eventId}/public/messages/{key} [delete]
func (h *Handlers) RemoveMessage(c *gin.Context) {
	if err := h.chatSvc.Remove(c.Request.Context(), conversationPath(c), c.Param("key")); err != nil {
		switch err {
		case services.ErrMessageNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "message not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	noContent(c)
}

// PurgeMessages godoc
// @ID          purgeMessages
// @Summary     Purge an entire conversation (moderation)
// @Description Deletes every message in the conversation and reports the count.
// @Tags        Moderation
// @Produce     json
//
// @Param       eventId  path  string  true  "Event ID"
//
// @Success     200  {object} handlers.PurgeResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /events/{eventId}/public/messages [delete]
func (h *Handlers) PurgeMessages(c *gin.Context) {
	n, err := h.chatSvc.Purge(c.Request.Context(), conversationPath(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, PurgeResponse{Removed: n})
}
