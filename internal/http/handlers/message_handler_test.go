package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/geniality/event-chat-backend/internal/domain"
	"github.com/geniality/event-chat-backend/internal/http/middleware"
	"github.com/geniality/event-chat-backend/internal/services"
	"github.com/geniality/event-chat-backend/internal/view"
)

//
// Fakes
//

type fakeConversationService struct {
	listFn      func(ctx context.Context, path, beforeKey string, limit int) ([]domain.Message, error)
	questionsFn func(ctx context.Context, path, callerName, callerID string, limit int) (view.Projection, error)
	sendFn      func(ctx context.Context, in services.SendInput) (*domain.Message, error)
	likeFn      func(ctx context.Context, path, key, voterID string) (*domain.Message, error)
	removeFn    func(ctx context.Context, path, key string) error
	purgeFn     func(ctx context.Context, path string) (int, error)
}

func (f *fakeConversationService) ListMessages(ctx context.Context, path, beforeKey string, limit int) ([]domain.Message, error) {
	return f.listFn(ctx, path, beforeKey, limit)
}

func (f *fakeConversationService) Questions(ctx context.Context, path, callerName, callerID string, limit int) (view.Projection, error) {
	return f.questionsFn(ctx, path, callerName, callerID, limit)
}

func (f *fakeConversationService) Send(ctx context.Context, in services.SendInput) (*domain.Message, error) {
	return f.sendFn(ctx, in)
}

func (f *fakeConversationService) ToggleLike(ctx context.Context, path, key, voterID string) (*domain.Message, error) {
	return f.likeFn(ctx, path, key, voterID)
}

func (f *fakeConversationService) Remove(ctx context.Context, path, key string) error {
	return f.removeFn(ctx, path, key)
}

func (f *fakeConversationService) Purge(ctx context.Context, path string) (int, error) {
	return f.purgeFn(ctx, path)
}

// newConversationRouter mounts the conversation endpoints the way the real
// router does, including the idempotency middleware the send path relies on.
func newConversationRouter(svc ConversationService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil))
	h := New(svc, nil, nil)

	pub := r.Group("/api/v1/events/:eventId/public")
	pub.GET("/messages", h.ListMessages)
	pub.POST("/messages", h.SendMessage)
	pub.POST("/messages/:key/like", h.ToggleLike)
	pub.DELETE("/messages/:key", h.RemoveMessage)
	pub.DELETE("/messages", h.PurgeMessages)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, url string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, url, rd)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

//
// Tests
//

func TestListMessages_PageAndParams(t *testing.T) {
	ts := int64(1700000000000)
	var gotPath, gotBefore string
	var gotLimit int
	svc := &fakeConversationService{
		listFn: func(_ context.Context, path, beforeKey string, limit int) ([]domain.Message, error) {
			gotPath, gotBefore, gotLimit = path, beforeKey, limit
			return []domain.Message{
				{Key: "k1", Text: "a", TS: &ts},
				{Key: "k2", Text: "b", TS: &ts},
			}, nil
		},
	}
	r := newConversationRouter(svc)

	w := doJSON(t, r, http.MethodGet, "/api/v1/events/e1/public/messages?before=k9&limit=25", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if gotPath != "/events/e1/public/messages" || gotBefore != "k9" || gotLimit != 25 {
		t.Fatalf("service got (%q, %q, %d)", gotPath, gotBefore, gotLimit)
	}

	var resp ListMessagesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp.Count != 2 || resp.OldestKey != "k1" || resp.Messages[1].Key != "k2" {
		t.Fatalf("unexpected page: %+v", resp)
	}
}

func TestListMessages_QuestionsView(t *testing.T) {
	svc := &fakeConversationService{
		questionsFn: func(_ context.Context, path, callerName, callerID string, _ int) (view.Projection, error) {
			if path != "/events/e1/public/messages" || callerName != "Ana" || callerID != "u7" {
				t.Fatalf("projection args: %q %q %q", path, callerName, callerID)
			}
			return view.Projection{Mode: view.ModeQuestions, Threads: []view.Thread{
				{
					Question: view.Item{Message: domain.Message{Key: "q1", Text: "why?"}, LikeCount: 3, LikedByCaller: true},
					Replies:  []view.Item{{Message: domain.Message{Key: "r1", Text: "because"}}},
				},
			}}, nil
		},
	}
	r := newConversationRouter(svc)

	w := doJSON(t, r, http.MethodGet, "/api/v1/events/e1/public/messages?view=questions&name=Ana", nil,
		map[string]string{"X-User-ID": "u7"})
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp QuestionsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(resp.Threads) != 1 {
		t.Fatalf("threads=%d", len(resp.Threads))
	}
	q := resp.Threads[0].Question
	if q.Message.Key != "q1" || q.LikeCount != 3 || !q.LikedByCaller {
		t.Fatalf("question wrong: %+v", q)
	}
	if len(resp.Threads[0].Replies) != 1 || resp.Threads[0].Replies[0].Message.Key != "r1" {
		t.Fatalf("replies wrong: %+v", resp.Threads[0].Replies)
	}
}

func TestSendMessage_CreatedAndSanitized(t *testing.T) {
	var got services.SendInput
	svc := &fakeConversationService{
		sendFn: func(_ context.Context, in services.SendInput) (*domain.Message, error) {
			got = in
			return &domain.Message{Key: "k1", Text: in.Text, Name: in.Name}, nil
		},
	}
	r := newConversationRouter(svc)

	w := doJSON(t, r, http.MethodPost, "/api/v1/events/e1/public/messages", SendMessageRequest{
		Text: "  hola\r\n\r\n\r\n\r\nmundo  ", Name: "Ana",
	}, map[string]string{"X-User-ID": "u1", middleware.HeaderIdempotencyKey: "retry-1"})
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if got.Text != "hola\n\nmundo" {
		t.Fatalf("text not sanitized: %q", got.Text)
	}
	if got.UserID != "u1" || got.Path != "/events/e1/public/messages" || got.IdempotencyKey != "retry-1" {
		t.Fatalf("input wrong: %+v", got)
	}

	var resp SendMessageResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp.Message == nil || resp.Message.Key != "k1" {
		t.Fatalf("unexpected body: %+v", resp)
	}
}

func TestSendMessage_Validation(t *testing.T) {
	svc := &fakeConversationService{
		sendFn: func(_ context.Context, _ services.SendInput) (*domain.Message, error) {
			t.Fatal("service must not be called")
			return nil, nil
		},
	}
	r := newConversationRouter(svc)

	if w := doJSON(t, r, http.MethodPost, "/api/v1/events/e1/public/messages", gin.H{"name": "Ana"}, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("missing text: status=%d", w.Code)
	}
	if w := doJSON(t, r, http.MethodPost, "/api/v1/events/e1/public/messages", SendMessageRequest{Text: "   "}, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("blank text: status=%d", w.Code)
	}
}

func TestSendMessage_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"question missing", services.ErrMessageNotFound, http.StatusNotFound},
		{"reply to non-question", services.ErrNotAQuestion, http.StatusBadRequest},
		{"empty after service trim", services.ErrEmptyMessage, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeConversationService{
				sendFn: func(_ context.Context, _ services.SendInput) (*domain.Message, error) {
					return nil, tc.err
				},
			}
			r := newConversationRouter(svc)
			w := doJSON(t, r, http.MethodPost, "/api/v1/events/e1/public/messages", SendMessageRequest{Text: "x"}, nil)
			if w.Code != tc.status {
				t.Fatalf("status=%d; want %d", w.Code, tc.status)
			}
		})
	}
}

func TestToggleLike_Mapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"ok", nil, http.StatusOK},
		{"missing", services.ErrMessageNotFound, http.StatusNotFound},
		{"not a question", services.ErrNotAQuestion, http.StatusBadRequest},
		{"conflict", services.ErrLikeConflict, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeConversationService{
				likeFn: func(_ context.Context, _, key, voterID string) (*domain.Message, error) {
					if key != "k1" || voterID != "u9" {
						t.Fatalf("like args: %q %q", key, voterID)
					}
					if tc.err != nil {
						return nil, tc.err
					}
					n := 1
					return &domain.Message{Key: key, Type: domain.TypeQuestion, LikesCount: &n}, nil
				},
			}
			r := newConversationRouter(svc)
			w := doJSON(t, r, http.MethodPost, "/api/v1/events/e1/public/messages/k1/like", nil,
				map[string]string{"X-User-ID": "u9"})
			if w.Code != tc.status {
				t.Fatalf("status=%d; want %d", w.Code, tc.status)
			}
		})
	}
}

func TestModerationEndpoints(t *testing.T) {
	removed := map[string]bool{}
	svc := &fakeConversationService{
		removeFn: func(_ context.Context, _, key string) error {
			if removed[key] {
				return services.ErrMessageNotFound
			}
			removed[key] = true
			return nil
		},
		purgeFn: func(_ context.Context, path string) (int, error) {
			if path != "/events/e1/public/messages" {
				t.Fatalf("purge path: %q", path)
			}
			return 3, nil
		},
	}
	r := newConversationRouter(svc)

	if w := doJSON(t, r, http.MethodDelete, "/api/v1/events/e1/public/messages/k1", nil, nil); w.Code != http.StatusNoContent {
		t.Fatalf("remove: status=%d", w.Code)
	}
	if w := doJSON(t, r, http.MethodDelete, "/api/v1/events/e1/public/messages/k1", nil, nil); w.Code != http.StatusNotFound {
		t.Fatalf("remove twice: status=%d", w.Code)
	}

	w := doJSON(t, r, http.MethodDelete, "/api/v1/events/e1/public/messages", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("purge: status=%d", w.Code)
	}
	var resp PurgeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.Removed != 3 {
		t.Fatalf("purge body: %s (%v)", w.Body.String(), err)
	}
}

func Test_conversationPath_PrivateRoutes(t *testing.T) {
	var gotPath string
	svc := &fakeConversationService{
		listFn: func(_ context.Context, path, _ string, _ int) ([]domain.Message, error) {
			gotPath = path
			return nil, nil
		},
	}
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := New(svc, nil, nil)
	r.GET("/api/v1/events/:eventId/private/:chatId/messages", h.ListMessages)

	w := doJSON(t, r, http.MethodGet, "/api/v1/events/e1/private/c42/messages", nil,
		map[string]string{"X-User-ID": "u1"})
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if gotPath != "/events/e1/private/c42/messages" {
		t.Fatalf("path=%q", gotPath)
	}
}
