package service

import (
	"fmt"
)

// ProviderError is any non-2xx response from the signing provider. The raw
// body is kept verbatim; duplicate-signer detection matches substrings
// against it because the provider has no structured conflict code.
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider returned %d: %s", e.StatusCode, e.Body)
}

// UploadFailedError means the upload response carried neither a top-level
// "id" nor a nested "data.id".
type UploadFailedError struct {
	Filename string
}

func (e *UploadFailedError) Error() string {
	return fmt.Sprintf("upload of %q returned no document id", e.Filename)
}

// ProcessingTimeoutError means the document never reached a ready status
// within the attempt budget. The caller may retry the whole creation; the
// orchestrator never retries it on its own.
type ProcessingTimeoutError struct {
	DocumentID string
	Attempts   int
}

func (e *ProcessingTimeoutError) Error() string {
	return fmt.Sprintf("document %s not ready after %d attempts", e.DocumentID, e.Attempts)
}

// SignerCreationError identifies which signer blocked envelope creation.
// Signers already created on the provider side are left as-is; there is no
// remote rollback.
type SignerCreationError struct {
	SignerName string
	Err        error
}

func (e *SignerCreationError) Error() string {
	return fmt.Sprintf("failed to resolve signer %q: %v", e.SignerName, e.Err)
}

func (e *SignerCreationError) Unwrap() error { return e.Err }

// DispatchError means the assignment call failed after signers were
// resolved. It is never auto-retried: a second dispatch could notify
// signers twice.
type DispatchError struct {
	DocumentID string
	Err        error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("failed to dispatch assignment for document %s: %v", e.DocumentID, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }
