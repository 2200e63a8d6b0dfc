package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"time"

	"github.com/Turbo-Partners/UGCHUB-sub009/config"
	"github.com/Turbo-Partners/UGCHUB-sub009/model"
)

// ProviderClient wraps the signing provider's REST API. Every call carries
// the static API key header; responses are decoded into untyped maps because
// the provider varies field names across its own endpoints.
type ProviderClient struct {
	config     *config.ProviderConfig
	httpClient *http.Client
}

// NewProviderClient fails fast when the required secrets are absent.
func NewProviderClient(cfg *config.ProviderConfig) (*ProviderClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &ProviderClient{
		config: cfg,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}, nil
}

// do executes an authenticated request and decodes the JSON response.
// Non-2xx responses become *ProviderError with the body kept verbatim.
// contentType must be empty for bodiless requests.
func (c *ProviderClient) do(ctx context.Context, method, path, contentType string, body io.Reader) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("X-Api-Key", c.config.APIKey)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	if len(raw) == 0 {
		return map[string]any{}, nil
	}

	var parsed map[string]any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w, body: %s", err, string(raw))
	}

	return parsed, nil
}

// postJSON marshals body and issues a POST.
func (c *ProviderClient) postJSON(ctx context.Context, path string, body any) (map[string]any, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, "application/json", bytes.NewReader(data))
}

// UploadDocument submits a PDF as a multipart upload and returns the
// provider-assigned document id. The multipart writer owns the content type
// so the boundary is never hand-written.
func (c *ProviderClient) UploadDocument(ctx context.Context, document []byte, filename string) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", "application/pdf")

	part, err := writer.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("failed to create multipart payload: %w", err)
	}
	if _, err := part.Write(document); err != nil {
		return "", fmt.Errorf("failed to write multipart payload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize multipart payload: %w", err)
	}

	path := fmt.Sprintf("/accounts/%s/documents", c.config.Workspace)
	resp, err := c.do(ctx, http.MethodPost, path, writer.FormDataContentType(), &buf)
	if err != nil {
		return "", err
	}

	// The provider returns the id either at the top level or under data,
	// depending on response type.
	id := extractID(resp)
	if id == "" {
		return "", &UploadFailedError{Filename: filename}
	}

	return id, nil
}

// GetDocument fetches the provider's current representation of a document.
func (c *ProviderClient) GetDocument(ctx context.Context, documentID string) (*model.DocumentHandle, error) {
	resp, err := c.do(ctx, http.MethodGet, "/documents/"+documentID, "", nil)
	if err != nil {
		return nil, err
	}

	payload := unwrapData(resp)

	handle := &model.DocumentHandle{
		ProviderDocumentID: documentID,
		Status:             stringField(payload, "status"),
		Artifacts:          make(map[model.ArtifactKind]string),
		Raw:                payload,
	}

	if artifacts, ok := payload["artifacts"].(map[string]any); ok {
		for kind, v := range artifacts {
			if u, ok := v.(string); ok && u != "" {
				handle.Artifacts[model.ArtifactKind(kind)] = u
			}
		}
	}

	if signers, ok := payload["signers"].([]any); ok {
		for _, entry := range signers {
			rec, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			handle.Signers = append(handle.Signers, model.ProviderSignerState{
				ID:       stringField(rec, "id"),
				Name:     stringField(rec, "full_name"),
				Email:    stringField(rec, "email"),
				Status:   stringField(rec, "status"),
				SignURL:  stringField(rec, "sign_url"),
				SignedAt: stringField(rec, "signed_at"),
			})
		}
	}

	return handle, nil
}

// SignerRecord is one record from the provider's signer collection.
type SignerRecord struct {
	ID    string
	Name  string
	Email string
}

// SearchSignersByEmail queries the provider's signer collection filtered by
// email. The server-side filter is not exact; callers must match client-side.
func (c *ProviderClient) SearchSignersByEmail(ctx context.Context, email string) ([]SignerRecord, error) {
	path := fmt.Sprintf("/accounts/%s/signers?email=%s", c.config.Workspace, url.QueryEscape(email))
	resp, err := c.do(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return nil, err
	}

	var result []SignerRecord
	if records, ok := resp["data"].([]any); ok {
		for _, entry := range records {
			rec, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			result = append(result, SignerRecord{
				ID:    stringField(rec, "id"),
				Name:  stringField(rec, "full_name"),
				Email: stringField(rec, "email"),
			})
		}
	}

	return result, nil
}

// CreateSigner registers a new signer and returns the provider id.
func (c *ProviderClient) CreateSigner(ctx context.Context, name, email string) (string, error) {
	path := fmt.Sprintf("/accounts/%s/signers", c.config.Workspace)
	resp, err := c.postJSON(ctx, path, map[string]string{
		"full_name": name,
		"email":     email,
	})
	if err != nil {
		return "", err
	}

	id := extractID(resp)
	if id == "" {
		return "", fmt.Errorf("signer creation returned no id")
	}

	return id, nil
}

// CreateAssignment binds signers to a ready document and triggers delivery.
// Only the virtual signing method is supported.
func (c *ProviderClient) CreateAssignment(ctx context.Context, documentID string, signerIDs []string, message string) error {
	body := map[string]any{
		"method":  "virtual",
		"signers": signerIDs,
	}
	if message != "" {
		body["message"] = message
	}

	_, err := c.postJSON(ctx, "/documents/"+documentID+"/assignments", body)
	return err
}

// DeleteDocument cancels a document. Whether cancellation is still permitted
// is the provider's call; its error comes back unmodified.
func (c *ProviderClient) DeleteDocument(ctx context.Context, documentID string) error {
	_, err := c.do(ctx, http.MethodDelete, "/documents/"+documentID, "", nil)
	return err
}

// unwrapData returns the data sub-object when present, the payload itself
// otherwise.
func unwrapData(payload map[string]any) map[string]any {
	if data, ok := payload["data"].(map[string]any); ok {
		return data
	}
	return payload
}

// extractID checks the top-level id and then data.id.
func extractID(payload map[string]any) string {
	if id := stringField(payload, "id"); id != "" {
		return id
	}
	if data, ok := payload["data"].(map[string]any); ok {
		return stringField(data, "id")
	}
	return ""
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
