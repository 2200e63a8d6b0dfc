package handler

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Turbo-Partners/UGCHUB-sub009/config"
	"github.com/Turbo-Partners/UGCHUB-sub009/model"
	"github.com/Turbo-Partners/UGCHUB-sub009/service"
	"github.com/gin-gonic/gin"
)

func setupTestStore() *service.EnvelopeStore {
	return service.GetEnvelopeStore()
}

func newProviderBackedService(t *testing.T, providerHandler http.HandlerFunc) (*service.EnvelopeService, func()) {
	t.Helper()

	server := httptest.NewServer(providerHandler)

	cfg := &config.ProviderConfig{
		BaseURL:             server.URL,
		APIKey:              "test-api-key",
		Workspace:           "ws-1",
		PollIntervalSeconds: 1,
		PollMaxAttempts:     3,
	}

	client, err := service.NewProviderClient(cfg)
	if err != nil {
		t.Fatalf("Failed to create provider client: %v", err)
	}

	return service.NewEnvelopeService(client, cfg), server.Close
}

func TestEnvelopeHandlerList(t *testing.T) {
	store := setupTestStore()

	store.Save(&model.EnvelopeRecord{
		ID:        "env-1",
		Filename:  "deal1.pdf",
		Tenant:    "tenant1",
		Status:    model.StatusReady,
		CreatedAt: time.Now(),
	})
	store.Save(&model.EnvelopeRecord{
		ID:        "env-2",
		Filename:  "deal2.pdf",
		Tenant:    "tenant1",
		Status:    model.StatusClosed,
		CreatedAt: time.Now(),
	})
	store.Save(&model.EnvelopeRecord{
		ID:        "env-3",
		Filename:  "deal3.pdf",
		Tenant:    "tenant2",
		Status:    model.StatusReady,
		CreatedAt: time.Now(),
	})

	handler := &EnvelopeHandler{store: store}

	router := gin.New()
	router.GET("/envelopes", func(c *gin.Context) {
		c.Set("tenant", "tenant1")
		handler.List(c)
	})

	req := httptest.NewRequest("GET", "/envelopes", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string][]map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if len(response["envelopes"]) != 2 {
		t.Errorf("Expected 2 envelopes for tenant1, got %d", len(response["envelopes"]))
	}

	store.Delete("env-1")
	store.Delete("env-2")
	store.Delete("env-3")
}

func TestEnvelopeHandlerGet(t *testing.T) {
	store := setupTestStore()

	store.Save(&model.EnvelopeRecord{
		ID:        "get-test",
		Filename:  "deal.pdf",
		Tenant:    "tenant1",
		Status:    model.StatusReady,
		CreatedAt: time.Now(),
	})
	defer store.Delete("get-test")

	handler := &EnvelopeHandler{store: store}

	tests := []struct {
		name           string
		id             string
		tenant         string
		expectedStatus int
	}{
		{"valid get", "get-test", "tenant1", http.StatusOK},
		{"wrong tenant", "get-test", "tenant2", http.StatusNotFound},
		{"non-existent", "missing", "tenant1", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.GET("/envelopes/:id", func(c *gin.Context) {
				c.Set("tenant", tt.tenant)
				handler.Get(c)
			})

			req := httptest.NewRequest("GET", "/envelopes/"+tt.id, nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}
}

func TestEnvelopeHandlerGetStatus(t *testing.T) {
	store := setupTestStore()

	store.Save(&model.EnvelopeRecord{
		ID:                 "status-test",
		ProviderDocumentID: "doc1",
		Tenant:             "tenant1",
		Status:             model.StatusReady,
		CreatedAt:          time.Now(),
	})
	defer store.Delete("status-test")

	envelopeSvc, closeServer := newProviderBackedService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"id":"doc1","status":"partially_signed","signers":[
			{"id":"sg-1","full_name":"Ana Dias","email":"ana@example.com","status":"signed","signed_at":"2024-05-01T10:00:00Z"}
		]}}`))
	})
	defer closeServer()

	handler := &EnvelopeHandler{envelopes: envelopeSvc, store: store}

	router := gin.New()
	router.GET("/envelopes/:id/status", func(c *gin.Context) {
		c.Set("tenant", "tenant1")
		handler.GetStatus(c)
	})

	req := httptest.NewRequest("GET", "/envelopes/status-test/status", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var status model.EnvelopeStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if status.Status != "partially_signed" {
		t.Errorf("Expected partially_signed, got '%s'", status.Status)
	}
	if len(status.Signers) != 1 || !status.Signers[0].Signed {
		t.Errorf("Unexpected signers: %+v", status.Signers)
	}

	// The stored record should pick up the refreshed status
	if record := store.Get("status-test"); record.Status != "partially_signed" {
		t.Errorf("Expected stored status refreshed, got '%s'", record.Status)
	}
}

func TestEnvelopeHandlerCancelProviderRefusal(t *testing.T) {
	store := setupTestStore()

	store.Save(&model.EnvelopeRecord{
		ID:                 "cancel-test",
		ProviderDocumentID: "doc1",
		Tenant:             "tenant1",
		Status:             model.StatusClosed,
		CreatedAt:          time.Now(),
	})
	defer store.Delete("cancel-test")

	envelopeSvc, closeServer := newProviderBackedService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"message":"document already signed"}`))
	})
	defer closeServer()

	handler := &EnvelopeHandler{envelopes: envelopeSvc, store: store}

	router := gin.New()
	router.DELETE("/envelopes/:id", func(c *gin.Context) {
		c.Set("tenant", "tenant1")
		handler.Cancel(c)
	})

	req := httptest.NewRequest("DELETE", "/envelopes/cancel-test", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadGateway {
		t.Errorf("Expected status 502, got %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("already signed")) {
		t.Errorf("Expected provider message surfaced, got %s", w.Body.String())
	}

	// Local record stays when the provider refuses
	if store.Get("cancel-test") == nil {
		t.Error("Expected record to remain after refused cancellation")
	}
}

func TestEnvelopeHandlerCreateValidation(t *testing.T) {
	handler := &EnvelopeHandler{store: setupTestStore()}

	buildForm := func(filename, signers string) (*bytes.Buffer, string) {
		var buf bytes.Buffer
		writer := multipart.NewWriter(&buf)
		if filename != "" {
			part, _ := writer.CreateFormFile("file", filename)
			part.Write([]byte("%PDF-1.4"))
		}
		if signers != "" {
			writer.WriteField("signers", signers)
		}
		writer.Close()
		return &buf, writer.FormDataContentType()
	}

	tests := []struct {
		name     string
		filename string
		signers  string
	}{
		{"no file", "", `[{"name":"Ana","email":"ana@example.com","role":"brand"}]`},
		{"non-pdf file", "deal.docx", `[{"name":"Ana","email":"ana@example.com","role":"brand"}]`},
		{"no signers", "deal.pdf", ""},
		{"invalid signers json", "deal.pdf", "not-json"},
		{"empty signers list", "deal.pdf", "[]"},
		{"signer missing email", "deal.pdf", `[{"name":"Ana","role":"brand"}]`},
		{"signer bad role", "deal.pdf", `[{"name":"Ana","email":"ana@example.com","role":"stranger"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.POST("/envelopes", func(c *gin.Context) {
				c.Set("tenant", "tenant1")
				handler.Create(c)
			})

			body, contentType := buildForm(tt.filename, tt.signers)
			req := httptest.NewRequest("POST", "/envelopes", body)
			req.Header.Set("Content-Type", contentType)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", w.Code)
			}
		})
	}
}
