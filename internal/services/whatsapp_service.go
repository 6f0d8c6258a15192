// Package services – WhatsAppService
//
// This file implements the bulk WhatsApp sender: uploaded workbooks become
// persisted batches of queued messages, a run drains the queue against the
// gateway one message at a time, and the outcome is rendered back as an
// XLSX report.
package services

import (
	"context"
	"errors"
	"io"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/geniality/event-chat-backend/internal/domain"
	"github.com/geniality/event-chat-backend/internal/repo"
	"github.com/geniality/event-chat-backend/internal/whatsapp"
)

// Gateway is the single delivery capability the service needs.
type Gateway interface {
	Send(ctx context.Context, phone, message string) error
}

// WhatsAppService owns bulk-send batches end to end.
type WhatsAppService struct {
	// DB backs the batch and queue tables.
	DB *gorm.DB
	// Gateway delivers individual messages.
	Gateway Gateway
}

// NewWhatsAppService constructs the service.
func NewWhatsAppService(db *gorm.DB, gw Gateway) *WhatsAppService {
	return &WhatsAppService{DB: db, Gateway: gw}
}

// Template returns the upload template workbook.
func (s *WhatsAppService) Template() ([]byte, error) {
	return whatsapp.Template()
}

// CreateBatch parses an uploaded workbook and queues every usable row.
func (s *WhatsAppService) CreateBatch(ctx context.Context, fileName string, r io.Reader) (*domain.SendBatch, error) {
	tr := otel.Tracer("services/WhatsAppService")
	ctx, span := tr.Start(ctx, "CreateBatch",
		trace.WithAttributes(attribute.String("batch.file", fileName)),
	)
	defer span.End()

	recs, err := whatsapp.ParseRecipients(r)
	if err != nil {
		if errors.Is(err, whatsapp.ErrNoRecipients) {
			return nil, ErrNoRecipients
		}
		return nil, err
	}

	rows := make([]domain.OutboundMessage, 0, len(recs))
	for _, rec := range recs {
		rows = append(rows, domain.OutboundMessage{Phone: rec.Phone, Body: rec.Message})
	}
	return repo.CreateBatch(ctx, s.DB, fileName, rows)
}

// ListBatches returns all batches, newest first.
func (s *WhatsAppService) ListBatches(ctx context.Context) ([]domain.SendBatch, error) {
	return repo.ListBatches(ctx, s.DB)
}

// GetBatch returns one batch with its queued messages.
func (s *WhatsAppService) GetBatch(ctx context.Context, id string) (*domain.SendBatch, []domain.OutboundMessage, error) {
	batch, err := repo.GetBatch(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil, ErrBatchNotFound
		}
		return nil, nil, err
	}
	msgs, err := repo.ListBatchMessages(ctx, s.DB, id)
	if err != nil {
		return nil, nil, err
	}
	return batch, msgs, nil
}

// RunBatch drains one pending batch against the gateway sequentially, in
// queue order. Individual delivery failures are recorded per row and do not
// stop the run. A run cut short by context cancellation restores the batch
// to pending so the remaining rows can be drained by a later run; only a
// run that reaches the end of the queue marks the batch done.
func (s *WhatsAppService) RunBatch(ctx context.Context, id string) (*domain.SendBatch, error) {
	tr := otel.Tracer("services/WhatsAppService")
	ctx, span := tr.Start(ctx, "RunBatch",
		trace.WithAttributes(attribute.String("batch.id", id)),
	)
	defer span.End()

	batch, err := repo.GetBatch(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrBatchNotFound
		}
		return nil, err
	}
	if batch.Status != domain.BatchPending {
		return nil, ErrBatchNotRunnable
	}
	if err := repo.UpdateBatchStatus(ctx, s.DB, id, domain.BatchRunning); err != nil {
		return nil, err
	}

	msgs, err := repo.ListBatchMessages(ctx, s.DB, id)
	if err != nil {
		return nil, err
	}
	interrupted := false
	for _, m := range msgs {
		if m.Status != domain.OutboundPending {
			continue
		}
		if ctx.Err() != nil {
			interrupted = true
			break
		}
		if sendErr := s.Gateway.Send(ctx, m.Phone, m.Body); sendErr != nil {
			if ctx.Err() != nil {
				// Shutdown, not a delivery verdict: leave the row pending.
				interrupted = true
				break
			}
			_ = repo.MarkMessageFailed(ctx, s.DB, m.ID, sendErr.Error())
			continue
		}
		_ = repo.MarkMessageSent(ctx, s.DB, m.ID)
	}

	// The final status write must survive the cancellation that ended the
	// run, otherwise the batch would be stranded in the running state.
	endCtx := context.WithoutCancel(ctx)
	status := domain.BatchDone
	if interrupted {
		status = domain.BatchPending
	}
	if err := repo.UpdateBatchStatus(endCtx, s.DB, id, status); err != nil {
		return nil, err
	}
	return repo.GetBatch(endCtx, s.DB, id)
}

// Report renders the delivery outcome of one batch as an XLSX workbook.
func (s *WhatsAppService) Report(ctx context.Context, id string) ([]byte, error) {
	_, msgs, err := s.GetBatch(ctx, id)
	if err != nil {
		return nil, err
	}
	results := make([]whatsapp.Result, 0, len(msgs))
	for _, m := range msgs {
		r := whatsapp.Result{Phone: m.Phone, Message: m.Body}
		switch m.Status {
		case domain.OutboundSent:
			r.Status = whatsapp.StatusSent
		default:
			r.Status = whatsapp.StatusFailed
			r.Error = m.Error
		}
		results = append(results, r)
	}
	return whatsapp.Report(results)
}
