package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/geniality/event-chat-backend/internal/domain"
	"github.com/geniality/event-chat-backend/internal/services"
)

//
// Fakes
//

type fakeBulkSendService struct {
	templateFn func() ([]byte, error)
	createFn   func(ctx context.Context, fileName string, r io.Reader) (*domain.SendBatch, error)
	listFn     func(ctx context.Context) ([]domain.SendBatch, error)
	getFn      func(ctx context.Context, id string) (*domain.SendBatch, []domain.OutboundMessage, error)
	runFn      func(ctx context.Context, id string) (*domain.SendBatch, error)
	reportFn   func(ctx context.Context, id string) ([]byte, error)
}

func (f *fakeBulkSendService) Template() ([]byte, error) { return f.templateFn() }

func (f *fakeBulkSendService) CreateBatch(ctx context.Context, fileName string, r io.Reader) (*domain.SendBatch, error) {
	return f.createFn(ctx, fileName, r)
}

func (f *fakeBulkSendService) ListBatches(ctx context.Context) ([]domain.SendBatch, error) {
	return f.listFn(ctx)
}

func (f *fakeBulkSendService) GetBatch(ctx context.Context, id string) (*domain.SendBatch, []domain.OutboundMessage, error) {
	return f.getFn(ctx, id)
}

func (f *fakeBulkSendService) RunBatch(ctx context.Context, id string) (*domain.SendBatch, error) {
	return f.runFn(ctx, id)
}

func (f *fakeBulkSendService) Report(ctx context.Context, id string) ([]byte, error) {
	return f.reportFn(ctx, id)
}

func newWhatsAppRouter(svc BulkSendService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := New(nil, svc, nil)

	wa := r.Group("/api/v1/whatsapp")
	wa.GET("/template", h.DownloadTemplate)
	wa.POST("/batches", h.CreateBatch)
	wa.GET("/batches", h.ListBatches)
	wa.GET("/batches/:id", h.GetBatch)
	wa.POST("/batches/:id/run", h.RunBatch)
	wa.GET("/batches/:id/report", h.DownloadReport)
	return r
}

// multipartUpload builds a multipart body with one file field.
func multipartUpload(t *testing.T, field, name string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, name)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

//
// Tests
//

func TestDownloadTemplate(t *testing.T) {
	svc := &fakeBulkSendService{templateFn: func() ([]byte, error) { return []byte("xlsx-bytes"), nil }}
	r := newWhatsAppRouter(svc)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/whatsapp/template", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != xlsxContentType {
		t.Fatalf("content-type=%q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "whatsapp_template.xlsx") {
		t.Fatalf("content-disposition=%q", cd)
	}
	if w.Body.String() != "xlsx-bytes" {
		t.Fatalf("body=%q", w.Body.String())
	}
}

func TestCreateBatch_Upload(t *testing.T) {
	var gotName, gotContent string
	svc := &fakeBulkSendService{
		createFn: func(_ context.Context, fileName string, rd io.Reader) (*domain.SendBatch, error) {
			b, _ := io.ReadAll(rd)
			gotName, gotContent = fileName, string(b)
			return &domain.SendBatch{ID: "b1", FileName: fileName, Status: domain.BatchPending}, nil
		},
	}
	r := newWhatsAppRouter(svc)

	body, ct := multipartUpload(t, "file", "recipients.xlsx", []byte("workbook"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/whatsapp/batches", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if gotName != "recipients.xlsx" || gotContent != "workbook" {
		t.Fatalf("service got (%q, %q)", gotName, gotContent)
	}
	var resp BatchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.Batch == nil || resp.Batch.ID != "b1" {
		t.Fatalf("body: %s (%v)", w.Body.String(), err)
	}
}

func TestCreateBatch_Errors(t *testing.T) {
	svc := &fakeBulkSendService{
		createFn: func(_ context.Context, _ string, _ io.Reader) (*domain.SendBatch, error) {
			return nil, services.ErrNoRecipients
		},
	}
	r := newWhatsAppRouter(svc)

	// No multipart file at all.
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/whatsapp/batches", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("no file: status=%d", w.Code)
	}

	// Workbook without usable rows.
	body, ct := multipartUpload(t, "file", "empty.xlsx", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/whatsapp/batches", body)
	req.Header.Set("Content-Type", ct)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("no recipients: status=%d", w.Code)
	}
}

func TestGetBatch_And_List(t *testing.T) {
	svc := &fakeBulkSendService{
		getFn: func(_ context.Context, id string) (*domain.SendBatch, []domain.OutboundMessage, error) {
			if id != "b1" {
				return nil, nil, services.ErrBatchNotFound
			}
			return &domain.SendBatch{ID: "b1", Status: domain.BatchDone},
				[]domain.OutboundMessage{{ID: "m1", Phone: "573001234567", Status: domain.OutboundSent}}, nil
		},
		listFn: func(_ context.Context) ([]domain.SendBatch, error) {
			return []domain.SendBatch{{ID: "b2"}, {ID: "b1"}}, nil
		},
	}
	r := newWhatsAppRouter(svc)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/whatsapp/batches/b1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("get: status=%d", w.Code)
	}
	var detail BatchDetailResponse
	if err := json.Unmarshal(w.Body.Bytes(), &detail); err != nil || len(detail.Messages) != 1 {
		t.Fatalf("detail: %s (%v)", w.Body.String(), err)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/whatsapp/batches/zzz", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing: status=%d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/whatsapp/batches", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("list: status=%d", w.Code)
	}
	var list ListBatchesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil || len(list.Batches) != 2 {
		t.Fatalf("list body: %s (%v)", w.Body.String(), err)
	}
}

func TestRunBatch_Mapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"ok", nil, http.StatusOK},
		{"missing", services.ErrBatchNotFound, http.StatusNotFound},
		{"already ran", services.ErrBatchNotRunnable, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeBulkSendService{
				runFn: func(_ context.Context, id string) (*domain.SendBatch, error) {
					if tc.err != nil {
						return nil, tc.err
					}
					return &domain.SendBatch{ID: id, Status: domain.BatchDone}, nil
				},
			}
			r := newWhatsAppRouter(svc)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/whatsapp/batches/b1/run", nil))
			if w.Code != tc.status {
				t.Fatalf("status=%d; want %d", w.Code, tc.status)
			}
		})
	}
}

func TestDownloadReport(t *testing.T) {
	svc := &fakeBulkSendService{
		reportFn: func(_ context.Context, id string) ([]byte, error) {
			if id != "b1" {
				return nil, services.ErrBatchNotFound
			}
			return []byte("report-bytes"), nil
		},
	}
	r := newWhatsAppRouter(svc)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/whatsapp/batches/b1/report", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "whatsapp_report_b1.xlsx") {
		t.Fatalf("content-disposition=%q", cd)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/whatsapp/batches/zzz/report", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing: status=%d", w.Code)
	}
}
