package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/Turbo-Partners/UGCHUB-sub009/middleware"
	"github.com/Turbo-Partners/UGCHUB-sub009/model"
	"github.com/Turbo-Partners/UGCHUB-sub009/pkg/logger"
	"github.com/Turbo-Partners/UGCHUB-sub009/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type EnvelopeHandler struct {
	envelopes *service.EnvelopeService
	archive   *service.ArchiveService
	store     *service.EnvelopeStore
}

func NewEnvelopeHandler(envelopeSvc *service.EnvelopeService, archiveSvc *service.ArchiveService) *EnvelopeHandler {
	return &EnvelopeHandler{
		envelopes: envelopeSvc,
		archive:   archiveSvc,
		store:     service.GetEnvelopeStore(),
	}
}

// Create receives a contract PDF plus signer identities and drives the full
// envelope orchestration. Synchronous; the readiness poll can hold the
// request for up to a minute.
func (h *EnvelopeHandler) Create(c *gin.Context) {
	tenant := middleware.GetTenant(c)
	ctx := c.Request.Context()

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided"})
		return
	}
	defer file.Close()

	if ext := strings.ToLower(filepath.Ext(header.Filename)); ext != ".pdf" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only PDF files are allowed"})
		return
	}

	signersField := c.PostForm("signers")
	if signersField == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No signers provided"})
		return
	}

	var signers []model.SignerRequest
	if err := json.Unmarshal([]byte(signersField), &signers); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid signers payload"})
		return
	}
	if len(signers) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "At least one signer is required"})
		return
	}
	for _, sr := range signers {
		if sr.Name == "" || sr.Email == "" || !model.ValidRole(sr.Role) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Each signer needs name, email and a valid role"})
			return
		}
	}

	document, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file"})
		return
	}

	// Archive the original before anything touches the provider.
	recordID := uuid.New().String()
	objectName := h.archive.ObjectName(tenant, recordID, header.Filename)
	if err := h.archive.ArchivePDF(ctx, objectName, document); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to archive document: " + err.Error()})
		return
	}

	archiveURL, err := h.archive.PresignedURL(ctx, objectName)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate archive URL: " + err.Error()})
		return
	}

	envelope, err := h.envelopes.CreateEnvelope(ctx, document, header.Filename, signers)
	if err != nil {
		h.renderCreateError(c, err)
		return
	}

	record := &model.EnvelopeRecord{
		ID:                 recordID,
		ProviderDocumentID: envelope.ID,
		Filename:           header.Filename,
		Tenant:             tenant,
		ArchiveURL:         archiveURL,
		Status:             envelope.Status,
		SigningURL:         envelope.SigningURL,
		CreatedAt:          time.Now(),
		UpdatedAt:          time.Now(),
	}
	h.store.Save(record)

	logger.Info(ctx, "envelope created",
		"envelope_id", envelope.ID,
		"record_id", recordID,
		"signers", len(envelope.Signers),
	)

	c.JSON(http.StatusOK, gin.H{
		"id":       recordID,
		"envelope": envelope,
		"filename": header.Filename,
	})
}

// renderCreateError maps orchestration failures to responses specific enough
// for the front end to tell the user which step blocked and whether retrying
// makes sense.
func (h *EnvelopeHandler) renderCreateError(c *gin.Context, err error) {
	var timeoutErr *service.ProcessingTimeoutError
	var signerErr *service.SignerCreationError
	var dispatchErr *service.DispatchError
	var uploadErr *service.UploadFailedError
	var providerErr *service.ProviderError

	switch {
	case errors.As(err, &timeoutErr):
		c.JSON(http.StatusGatewayTimeout, gin.H{
			"error":     "Document processing timed out, please try again",
			"retryable": true,
		})
	case errors.As(err, &signerErr):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":  "Failed to register signer with the signing provider",
			"signer": signerErr.SignerName,
		})
	case errors.As(err, &dispatchErr):
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "Failed to notify signers; the envelope was not dispatched",
		})
	case errors.As(err, &uploadErr):
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "The signing provider did not accept the document",
		})
	case errors.As(err, &providerErr):
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "Signing provider error: " + providerErr.Body,
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create envelope: " + err.Error()})
	}
}

// List returns all envelope records for the current tenant
func (h *EnvelopeHandler) List(c *gin.Context) {
	tenant := middleware.GetTenant(c)
	records := h.store.GetByTenant(tenant)

	result := make([]gin.H, len(records))
	for i, record := range records {
		result[i] = gin.H{
			"id":         record.ID,
			"filename":   record.Filename,
			"status":     record.Status,
			"created_at": record.CreatedAt.Format(time.RFC3339),
			"updated_at": record.UpdatedAt.Format(time.RFC3339),
		}
	}

	c.JSON(http.StatusOK, gin.H{"envelopes": result})
}

// Get returns one stored envelope record
func (h *EnvelopeHandler) Get(c *gin.Context) {
	record := h.tenantRecord(c)
	if record == nil {
		return
	}

	c.JSON(http.StatusOK, record)
}

// GetStatus fetches the live envelope status from the provider and refreshes
// the stored record.
func (h *EnvelopeHandler) GetStatus(c *gin.Context) {
	record := h.tenantRecord(c)
	if record == nil {
		return
	}

	status, err := h.envelopes.GetEnvelopeStatus(c.Request.Context(), record.ProviderDocumentID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch envelope status: " + err.Error()})
		return
	}

	h.store.UpdateStatus(record.ID, status.Status, "")

	c.JSON(http.StatusOK, status)
}

// GetDownloads returns the authenticated artifact download URLs
func (h *EnvelopeHandler) GetDownloads(c *gin.Context) {
	record := h.tenantRecord(c)
	if record == nil {
		return
	}

	urls, err := h.envelopes.GetDownloadURLs(c.Request.Context(), record.ProviderDocumentID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch download URLs: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"downloads": urls})
}

// Cancel asks the provider to cancel the envelope and removes the local
// record. The provider decides whether cancellation is still allowed.
func (h *EnvelopeHandler) Cancel(c *gin.Context) {
	record := h.tenantRecord(c)
	if record == nil {
		return
	}

	if err := h.envelopes.CancelEnvelope(c.Request.Context(), record.ProviderDocumentID); err != nil {
		var pe *service.ProviderError
		if errors.As(err, &pe) {
			c.JSON(http.StatusBadGateway, gin.H{"error": pe.Body})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel envelope: " + err.Error()})
		return
	}

	h.store.Delete(record.ID)

	c.JSON(http.StatusOK, gin.H{"message": "Envelope cancelled"})
}

// tenantRecord looks up the :id record and enforces tenant ownership,
// writing the 404 itself when there is no match.
func (h *EnvelopeHandler) tenantRecord(c *gin.Context) *model.EnvelopeRecord {
	tenant := middleware.GetTenant(c)
	id := c.Param("id")

	record := h.store.Get(id)
	if record == nil || record.Tenant != tenant {
		c.JSON(http.StatusNotFound, gin.H{"error": "Envelope not found"})
		return nil
	}
	return record
}
