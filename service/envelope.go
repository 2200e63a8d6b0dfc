package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Turbo-Partners/UGCHUB-sub009/config"
	"github.com/Turbo-Partners/UGCHUB-sub009/model"
	"github.com/Turbo-Partners/UGCHUB-sub009/pkg/logger"
)

// readyStatuses are the document statuses that end the readiness poll.
var readyStatuses = map[string]bool{
	model.StatusReady:         true,
	model.StatusMetadataReady: true,
}

// pendingStatuses are the statuses expected while the provider is still
// processing. Anything outside this set and readyStatuses is tolerated but
// logged; the provider has been observed to introduce new transient statuses.
var pendingStatuses = map[string]bool{
	model.StatusUploaded:           true,
	model.StatusMetadataProcessing: true,
}

// conflictIndicators are substrings of provider error bodies that mean a
// signer with the same email already exists. The provider has no structured
// conflict code.
var conflictIndicators = []string{
	"already exists",
	"already been taken",
	"duplicate",
}

// statusCheckFailureCap bounds consecutive failed status checks. A single
// failed check keeps the poll alive; this many in a row mean the provider is
// down and the last error propagates unmodified.
const statusCheckFailureCap = 3

// signingURLFields is the priority order of field names the provider may
// return the signing URL under. The order matters: the provider is
// inconsistent across its own endpoints, so the first populated candidate
// wins. Keep the full list.
var signingURLFields = []string{
	"signing_url",
	"sign_url",
	"signer_access_url",
	"url",
}

// EnvelopeService orchestrates signature envelopes against the provider:
// upload, poll until ready, resolve signers, dispatch, assemble status.
// It holds no per-envelope state; independent creations may run concurrently.
type EnvelopeService struct {
	client       *ProviderClient
	accessToken  string
	pollInterval time.Duration
	maxAttempts  int
	sleep        func(time.Duration) // injectable so tests skip real delays
}

func NewEnvelopeService(client *ProviderClient, cfg *config.ProviderConfig) *EnvelopeService {
	return &EnvelopeService{
		client:       client,
		accessToken:  cfg.APIKey,
		pollInterval: time.Duration(cfg.PollIntervalSeconds) * time.Second,
		maxAttempts:  cfg.PollMaxAttempts,
		sleep:        time.Sleep,
	}
}

// CreateEnvelope drives the full orchestration for one document and returns
// the assembled envelope. Steps run sequentially; signer resolution is
// deliberately one at a time so the duplicate-detection retry stays simple.
// May block up to pollInterval*maxAttempts while the provider processes.
func (s *EnvelopeService) CreateEnvelope(ctx context.Context, document []byte, filename string, signers []model.SignerRequest) (*model.Envelope, error) {
	if len(signers) == 0 {
		return nil, fmt.Errorf("at least one signer is required")
	}
	for _, sr := range signers {
		if sr.Name == "" || sr.Email == "" {
			return nil, fmt.Errorf("signer name and email are required")
		}
		if !model.ValidRole(sr.Role) {
			return nil, fmt.Errorf("unknown signer role %q", sr.Role)
		}
	}

	documentID, err := s.client.UploadDocument(ctx, document, filename)
	if err != nil {
		return nil, err
	}

	ctx = logger.WithEnvelope(ctx, documentID)
	logger.Info(ctx, "document uploaded", "filename", filename)

	if _, err := s.waitUntilReady(ctx, documentID); err != nil {
		return nil, err
	}

	resolved := make([]model.ResolvedSigner, 0, len(signers))
	for _, sr := range signers {
		rs, err := s.resolveSigner(ctx, sr)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, rs)
	}

	signerIDs := make([]string, len(resolved))
	for i, rs := range resolved {
		signerIDs[i] = rs.ProviderSignerID
	}

	if err := s.client.CreateAssignment(ctx, documentID, signerIDs, ""); err != nil {
		return nil, &DispatchError{DocumentID: documentID, Err: err}
	}
	logger.Info(ctx, "assignment dispatched", "signers", len(signerIDs))

	final, err := s.client.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	return s.assembleEnvelope(final, resolved), nil
}

// GetEnvelopeStatus derives a fresh status view from the provider. Never
// cached: signers complete out of band in the provider's own UI.
func (s *EnvelopeService) GetEnvelopeStatus(ctx context.Context, envelopeID string) (*model.EnvelopeStatus, error) {
	handle, err := s.client.GetDocument(ctx, envelopeID)
	if err != nil {
		return nil, err
	}
	return s.toEnvelopeStatus(handle), nil
}

// CancelEnvelope asks the provider to cancel. The provider decides whether
// the document can still be cancelled; its error is surfaced as-is.
func (s *EnvelopeService) CancelEnvelope(ctx context.Context, envelopeID string) error {
	return s.client.DeleteDocument(ctx, envelopeID)
}

// GetDownloadURLs returns the authenticated download URL per artifact kind
// present on the document. Absent kinds are omitted.
func (s *EnvelopeService) GetDownloadURLs(ctx context.Context, envelopeID string) (map[model.ArtifactKind]string, error) {
	handle, err := s.client.GetDocument(ctx, envelopeID)
	if err != nil {
		return nil, err
	}
	return s.artifactURLs(handle), nil
}

// waitUntilReady polls the document status on a fixed interval until a ready
// status appears or the attempt budget runs out. The interval elapses before
// the first check too: the provider needs at least one interval to begin
// processing. Fixed delay, not backoff; remote processing time is near
// constant.
func (s *EnvelopeService) waitUntilReady(ctx context.Context, documentID string) (*model.DocumentHandle, error) {
	consecutiveFailures := 0
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		s.sleep(s.pollInterval)
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		handle, err := s.client.GetDocument(ctx, documentID)
		if err != nil {
			consecutiveFailures++
			if consecutiveFailures >= statusCheckFailureCap {
				return nil, err
			}
			logger.Warn(ctx, "status check failed", "attempt", attempt, "error", err)
			continue
		}
		consecutiveFailures = 0

		if readyStatuses[handle.Status] {
			logger.Info(ctx, "document ready", "status", handle.Status, "attempt", attempt)
			return handle, nil
		}

		if pendingStatuses[handle.Status] {
			logger.Debug(ctx, "document still processing", "status", handle.Status, "attempt", attempt)
		} else {
			// Unknown statuses keep the poll alive; treating them as fatal
			// would break on every provider-side status addition.
			logger.Warn(ctx, "unexpected document status", "status", handle.Status, "attempt", attempt)
		}
	}

	return nil, &ProcessingTimeoutError{DocumentID: documentID, Attempts: s.maxAttempts}
}

// resolveSigner maps an identity to a provider signer id, creating the
// signer only when the email lookup finds nothing. A create that fails with
// a duplicate indication retries the lookup once; that covers a signer
// created concurrently between lookup and create.
func (s *EnvelopeService) resolveSigner(ctx context.Context, req model.SignerRequest) (model.ResolvedSigner, error) {
	id, found := s.findSignerByEmail(ctx, req.Email)
	if !found {
		created, err := s.client.CreateSigner(ctx, req.Name, req.Email)
		if err == nil {
			logger.Info(ctx, "signer created", "email", req.Email)
		} else if isSignerConflict(err) {
			if existing, ok := s.findSignerByEmail(ctx, req.Email); ok {
				created, err = existing, nil
				logger.Info(ctx, "signer found after create conflict", "email", req.Email)
			}
		}
		if err != nil {
			return model.ResolvedSigner{}, &SignerCreationError{SignerName: req.Name, Err: err}
		}
		id = created
	} else {
		logger.Debug(ctx, "signer found by email", "email", req.Email)
	}

	return model.ResolvedSigner{
		ProviderSignerID: id,
		Name:             req.Name,
		Email:            req.Email,
		Role:             req.Role,
	}, nil
}

// findSignerByEmail is a best-effort probe. Transport failures mean "not
// found": a failed search must never block falling through to creation. This
// is the one place a provider error is absorbed instead of surfaced.
func (s *EnvelopeService) findSignerByEmail(ctx context.Context, email string) (string, bool) {
	records, err := s.client.SearchSignersByEmail(ctx, email)
	if err != nil {
		logger.Debug(ctx, "signer lookup failed, treating as not found", "email", email, "error", err)
		return "", false
	}

	// The provider's email filter is fuzzy; match exactly, case-insensitive.
	for _, rec := range records {
		if strings.EqualFold(rec.Email, email) {
			return rec.ID, true
		}
	}

	return "", false
}

func isSignerConflict(err error) bool {
	var pe *ProviderError
	if !errors.As(err, &pe) {
		return false
	}
	body := strings.ToLower(pe.Body)
	for _, indicator := range conflictIndicators {
		if strings.Contains(body, indicator) {
			return true
		}
	}
	return false
}

// assembleEnvelope builds the public Envelope view from the dispatched
// document and the signers resolved during this creation call.
func (s *EnvelopeService) assembleEnvelope(handle *model.DocumentHandle, resolved []model.ResolvedSigner) *model.Envelope {
	signURLs := make(map[string]string, len(handle.Signers))
	for _, ps := range handle.Signers {
		if ps.SignURL != "" {
			signURLs[ps.ID] = ps.SignURL
		}
	}

	signers := make([]model.EnvelopeSigner, len(resolved))
	for i, rs := range resolved {
		signers[i] = model.EnvelopeSigner{
			ID:      rs.ProviderSignerID,
			Name:    rs.Name,
			Email:   rs.Email,
			SignURL: signURLs[rs.ProviderSignerID],
		}
	}

	return &model.Envelope{
		ID:         handle.ProviderDocumentID,
		Status:     handle.Status,
		Signers:    signers,
		SigningURL: s.signingURL(handle),
	}
}

// toEnvelopeStatus maps the provider's document representation to the
// polling view.
func (s *EnvelopeService) toEnvelopeStatus(handle *model.DocumentHandle) *model.EnvelopeStatus {
	signers := make([]model.SignerStatus, len(handle.Signers))
	for i, ps := range handle.Signers {
		signers[i] = model.SignerStatus{
			ID:       ps.ID,
			Name:     ps.Name,
			Email:    ps.Email,
			Signed:   ps.SignedAt != "" || ps.Status == "signed",
			SignedAt: ps.SignedAt,
		}
	}

	status := &model.EnvelopeStatus{
		ID:         handle.ProviderDocumentID,
		Status:     handle.Status,
		SigningURL: s.signingURL(handle),
		Signers:    signers,
	}

	if u, ok := handle.Artifacts[model.ArtifactCertificated]; ok {
		status.SignedDocumentURL = s.withAccessToken(u)
	}

	return status
}

// signingURL searches the raw document payload for the first populated
// signing-URL candidate, in priority order.
func (s *EnvelopeService) signingURL(handle *model.DocumentHandle) string {
	for _, field := range signingURLFields {
		if v, ok := handle.Raw[field].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// artifactURLs maps each artifact present on the document to its
// authenticated URL. Kinds the provider did not return are left out, never
// null-filled.
func (s *EnvelopeService) artifactURLs(handle *model.DocumentHandle) map[model.ArtifactKind]string {
	known := []model.ArtifactKind{
		model.ArtifactOriginal,
		model.ArtifactCertificated,
		model.ArtifactBundle,
	}

	result := make(map[model.ArtifactKind]string)
	for _, kind := range known {
		if u, ok := handle.Artifacts[kind]; ok && u != "" {
			result[kind] = s.withAccessToken(u)
		}
	}
	return result
}

// withAccessToken appends the access token to a provider artifact URL. The
// suffix is applied only at the exposure boundary so the credential never
// lands in stored or logged URLs.
func (s *EnvelopeService) withAccessToken(raw string) string {
	sep := "?"
	if strings.Contains(raw, "?") {
		sep = "&"
	}
	return raw + sep + "access_token=" + s.accessToken
}
