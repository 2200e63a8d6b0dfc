package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Turbo-Partners/UGCHUB-sub009/config"
)

func testProviderConfig(serverURL string) *config.ProviderConfig {
	return &config.ProviderConfig{
		BaseURL:             serverURL,
		APIKey:              "test-api-key",
		Workspace:           "ws-1",
		PollIntervalSeconds: 1,
		PollMaxAttempts:     3,
	}
}

func TestNewProviderClientMissingCredentials(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.ProviderConfig
	}{
		{"missing api key", &config.ProviderConfig{Workspace: "ws-1"}},
		{"missing workspace", &config.ProviderConfig{APIKey: "key"}},
		{"missing both", &config.ProviderConfig{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewProviderClient(tt.cfg); err == nil {
				t.Error("Expected error for incomplete provider config")
			}
		})
	}
}

func TestProviderClientAuthHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "test-api-key" {
			t.Errorf("Expected X-Api-Key header, got '%s'", r.Header.Get("X-Api-Key"))
		}
		json.NewEncoder(w).Encode(map[string]any{"status": "ready"})
	}))
	defer server.Close()

	client, err := NewProviderClient(testProviderConfig(server.URL))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if _, err := client.GetDocument(context.Background(), "doc-1"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
}

func TestProviderClientErrorBodyPreserved(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message":"Email has already been taken"}`))
	}))
	defer server.Close()

	client, _ := NewProviderClient(testProviderConfig(server.URL))

	_, err := client.CreateSigner(context.Background(), "Ana", "ana@example.com")
	if err == nil {
		t.Fatal("Expected error for 422 response")
	}

	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("Expected ProviderError, got %T", err)
	}
	if pe.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("Expected status 422, got %d", pe.StatusCode)
	}
	if !strings.Contains(pe.Body, "already been taken") {
		t.Errorf("Expected raw body preserved, got '%s'", pe.Body)
	}
}

func TestUploadDocument(t *testing.T) {
	tests := []struct {
		name     string
		response string
		wantID   string
		wantErr  bool
	}{
		{"top-level id", `{"id":"doc-1"}`, "doc-1", false},
		{"nested data id", `{"data":{"id":"doc-2"}}`, "doc-2", false},
		{"no id anywhere", `{"message":"ok"}`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != "POST" {
					t.Errorf("Expected POST, got %s", r.Method)
				}
				if r.URL.Path != "/accounts/ws-1/documents" {
					t.Errorf("Unexpected path %s", r.URL.Path)
				}
				// The multipart layer must own the boundary.
				if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data; boundary=") {
					t.Errorf("Expected multipart content type, got '%s'", r.Header.Get("Content-Type"))
				}

				file, header, err := r.FormFile("file")
				if err != nil {
					t.Fatalf("Expected file part named 'file': %v", err)
				}
				defer file.Close()
				if header.Filename != "contract.pdf" {
					t.Errorf("Expected filename contract.pdf, got '%s'", header.Filename)
				}
				if ct := header.Header.Get("Content-Type"); ct != "application/pdf" {
					t.Errorf("Expected application/pdf part, got '%s'", ct)
				}

				w.Write([]byte(tt.response))
			}))
			defer server.Close()

			client, _ := NewProviderClient(testProviderConfig(server.URL))

			id, err := client.UploadDocument(context.Background(), []byte("%PDF-1.4"), "contract.pdf")
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error when response has no id")
				}
				var ue *UploadFailedError
				if !errors.As(err, &ue) {
					t.Errorf("Expected UploadFailedError, got %T", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if id != tt.wantID {
				t.Errorf("Expected id '%s', got '%s'", tt.wantID, id)
			}
		})
	}
}

func TestGetDocument(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/documents/doc-1" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{
			"data": {
				"id": "doc-1",
				"status": "ready",
				"signing_url": "https://sign.test/abc",
				"artifacts": {
					"original": "https://files.test/original.pdf",
					"certificated": "https://files.test/certificated.pdf"
				},
				"signers": [
					{"id": "sg-1", "full_name": "Ana Dias", "email": "ana@example.com", "status": "pending", "sign_url": "https://sign.test/sg-1"}
				]
			}
		}`))
	}))
	defer server.Close()

	client, _ := NewProviderClient(testProviderConfig(server.URL))

	handle, err := client.GetDocument(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if handle.Status != "ready" {
		t.Errorf("Expected status ready, got '%s'", handle.Status)
	}
	if len(handle.Artifacts) != 2 {
		t.Errorf("Expected 2 artifacts, got %d", len(handle.Artifacts))
	}
	if len(handle.Signers) != 1 {
		t.Fatalf("Expected 1 signer, got %d", len(handle.Signers))
	}
	if handle.Signers[0].Email != "ana@example.com" {
		t.Errorf("Unexpected signer email '%s'", handle.Signers[0].Email)
	}
	if handle.Raw["signing_url"] != "https://sign.test/abc" {
		t.Error("Expected raw payload to keep the signing_url field")
	}
}

func TestSearchSignersByEmail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/accounts/ws-1/signers" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("email") != "ana@example.com" {
			t.Errorf("Expected email query, got '%s'", r.URL.Query().Get("email"))
		}
		w.Write([]byte(`{"data":[{"id":"sg-1","full_name":"Ana Dias","email":"ana@example.com"}]}`))
	}))
	defer server.Close()

	client, _ := NewProviderClient(testProviderConfig(server.URL))

	records, err := client.SearchSignersByEmail(context.Background(), "ana@example.com")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(records) != 1 || records[0].ID != "sg-1" {
		t.Errorf("Unexpected records: %+v", records)
	}
}

func TestCreateAssignment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/documents/doc-1/assignments" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}

		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["method"] != "virtual" {
			t.Errorf("Expected virtual signing method, got '%v'", body["method"])
		}
		signers, ok := body["signers"].([]any)
		if !ok || len(signers) != 2 {
			t.Errorf("Expected 2 signer ids, got %v", body["signers"])
		}
		if _, present := body["message"]; present {
			t.Error("Expected message to be omitted when empty")
		}

		w.Write([]byte(`{"data":{"id":"asg-1"}}`))
	}))
	defer server.Close()

	client, _ := NewProviderClient(testProviderConfig(server.URL))

	err := client.CreateAssignment(context.Background(), "doc-1", []string{"sg-1", "sg-2"}, "")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
}

func TestDeleteDocumentErrorVerbatim(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "DELETE" {
			t.Errorf("Expected DELETE, got %s", r.Method)
		}
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"message":"document already signed"}`))
	}))
	defer server.Close()

	client, _ := NewProviderClient(testProviderConfig(server.URL))

	err := client.DeleteDocument(context.Background(), "doc-1")
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("Expected ProviderError, got %v", err)
	}
	if !strings.Contains(pe.Body, "already signed") {
		t.Errorf("Expected provider body surfaced verbatim, got '%s'", pe.Body)
	}
}
