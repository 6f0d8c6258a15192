// WhatsApp bulk-send HTTP handlers.
//
// This file exposes REST endpoints for the bulk sender:
//   - GET    /whatsapp/template            (download the upload template)
//   - POST   /whatsapp/batches             (upload a workbook, queue a batch)
//   - GET    /whatsapp/batches             (list batches)
//   - GET    /whatsapp/batches/{id}        (one batch with its queue)
//   - POST   /whatsapp/batches/{id}/run    (drain the queue against the gateway)
//   - GET    /whatsapp/batches/{id}/report (download the outcome workbook)
//
// Uploads and downloads use the XLSX format the operations team already works
// with; parsing and rendering live in the whatsapp package.
package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/geniality/event-chat-backend/internal/domain"
	"github.com/geniality/event-chat-backend/internal/services"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

//
// DTOs
//

// BatchResponse is the JSON envelope for a single batch.
type BatchResponse struct {
	Batch *domain.SendBatch `json:"batch"`
}

// BatchDetailResponse is a batch together with its queued messages.
type BatchDetailResponse struct {
	Batch    *domain.SendBatch        `json:"batch"`
	Messages []domain.OutboundMessage `json:"messages"`
}

// ListBatchesResponse wraps all batches, newest first.
type ListBatchesResponse struct {
	Batches []domain.SendBatch `json:"batches"`
}

//
// Handlers
//

// DownloadTemplate godoc
// @ID          downloadTemplate
// @Summary     Download the bulk-send upload template
// @Tags        WhatsApp
// @Produce     application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
//
// @Success     200  {file}   file
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /whatsapp/template [get]
func (h *Handlers) DownloadTemplate(c *gin.Context) {
	b, err := h.waSvc.Template()
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	c.Header("Content-Disposition", `attachment; filename="whatsapp_template.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, b)
}

// CreateBatch godoc
// @ID          createBatch
// @Summary     Upload a workbook and queue a send batch
// @Description Accepts a multipart upload under the "file" field. Every row
// @Description with a phone and a message is queued; the batch stays pending
// @Description until a run is requested.
// @Tags        WhatsApp
// @Accept      multipart/form-data
// @Produce     json
//
// @Param       file  formData  file  true  "XLSX workbook (template layout)"
//
// @Success     201  {object} handlers.BatchResponse
// @Failure     400  {object} handlers.ErrorResponse "Missing file or no usable rows"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /whatsapp/batches [post]
func (h *Handlers) CreateBatch(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "multipart field 'file' required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeUploadFailed, "cannot read upload")
		return
	}
	defer f.Close()

	batch, err := h.waSvc.CreateBatch(c.Request.Context(), fh.Filename, f)
	if err != nil {
		switch err {
		case services.ErrNoRecipients:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "workbook has no usable phone/message rows")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeUploadFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusCreated, BatchResponse{Batch: batch})
}

// ListBatches godoc
// @ID          listBatches
// @Summary     List send batches
// @Tags        WhatsApp
// @Produce     json
//
// @Success     200  {object} handlers.ListBatchesResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /whatsapp/batches [get]
func (h *Handlers) ListBatches(c *gin.Context) {
	batches, err := h.waSvc.ListBatches(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListBatchesResponse{Batches: batches})
}

// GetBatch godoc
// @ID          getBatch
// @Summary     Get one batch with its queued messages
// @Tags        WhatsApp
// @Produce     json
//
// @Param       id  path  string  true  "Batch ID (UUID)"  format(uuid)
//
// @Success     200  {object} handlers.BatchDetailResponse
// @Failure     404  {object} handlers.ErrorResponse "Batch not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /whatsapp/batches/{id} [get]
func (h *Handlers) GetBatch(c *gin.Context) {
	batch, msgs, err := h.waSvc.GetBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch err {
		case services.ErrBatchNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "batch not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, BatchDetailResponse{Batch: batch, Messages: msgs})
}

// RunBatch godoc
// @ID          runBatch
// @Summary     Run a pending batch
// @Description Sends every queued message to the gateway one at a time, in
// @Description queue order. Per-row failures are recorded and do not stop the
// @Description run; the batch ends in the done state.
// @Tags        WhatsApp
// @Produce     json
//
// @Param       id  path  string  true  "Batch ID (UUID)"  format(uuid)
//
// @Success     200  {object} handlers.BatchResponse "Batch after the run"
// @Failure     404  {object} handlers.ErrorResponse "Batch not found"
// @Failure     409  {object} handlers.ErrorResponse "Batch already ran or is running"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /whatsapp/batches/{id}/run [post]
func (h *Handlers) RunBatch(c *gin.Context) {
	batch, err := h.waSvc.RunBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch err {
		case services.ErrBatchNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "batch not found")
		case services.ErrBatchNotRunnable:
			fail(c, http.StatusConflict, ErrCodeConflict, "batch already ran or is running")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeRunFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, BatchResponse{Batch: batch})
}

// DownloadReport godoc
// @ID          downloadReport
// @Summary     Download the delivery report of a batch
// @Tags        WhatsApp
// @Produce     application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
//
// @Param       id  path  string  true  "Batch ID (UUID)"  format(uuid)
//
// @Success     200  {file}   file
// @Failure     404  {object} handlers.ErrorResponse "Batch not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /whatsapp/batches/{id}/report [get]
func (h *Handlers) DownloadReport(c *gin.Context) {
	id := c.Param("id")
	b, err := h.waSvc.Report(c.Request.Context(), id)
	if err != nil {
		switch err {
		case services.ErrBatchNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "batch not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="whatsapp_report_%s.xlsx"`, id))
	c.Data(http.StatusOK, xlsxContentType, b)
}
