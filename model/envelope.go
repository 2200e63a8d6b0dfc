package model

import (
	"time"
)

// SignerRole identifies which party in the marketplace deal a signer
// represents. It is an internal concept; the signing provider never sees it.
type SignerRole string

const (
	RoleBrand   SignerRole = "brand"
	RoleCreator SignerRole = "creator"
	RoleAgency  SignerRole = "agency"
	RoleWitness SignerRole = "witness"
)

// ValidRole reports whether r is one of the known signer roles.
func ValidRole(r SignerRole) bool {
	switch r {
	case RoleBrand, RoleCreator, RoleAgency, RoleWitness:
		return true
	}
	return false
}

// SignerRequest is the caller-supplied identity of one signing party.
type SignerRequest struct {
	Name  string     `json:"name"`
	Email string     `json:"email"`
	Phone string     `json:"phone,omitempty"`
	TaxID string     `json:"tax_id,omitempty"`
	Role  SignerRole `json:"role"`
}

// ResolvedSigner pairs a SignerRequest with the signer id the provider
// assigned to that email. The id is looked up or created remotely, never
// generated locally.
type ResolvedSigner struct {
	ProviderSignerID string     `json:"provider_signer_id"`
	Name             string     `json:"name"`
	Email            string     `json:"email"`
	Role             SignerRole `json:"role"`
}

// ArtifactKind names the downloadable renditions the provider produces for
// a document.
type ArtifactKind string

const (
	ArtifactOriginal     ArtifactKind = "original"
	ArtifactCertificated ArtifactKind = "certificated"
	ArtifactBundle       ArtifactKind = "bundle"
)

// Document lifecycle statuses as observed from the provider. The set is
// open-ended on the provider side; anything outside it is tolerated.
const (
	StatusUploaded           = "uploaded"
	StatusMetadataProcessing = "metadata_processing"
	StatusMetadataReady      = "metadata_ready"
	StatusReady              = "ready"
	StatusPartiallySigned    = "partially_signed"
	StatusClosed             = "closed"
	StatusDeclined           = "declined"
)

// ProviderSignerState is one signer's entry in the provider's document
// representation.
type ProviderSignerState struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Status   string `json:"status"`
	SignURL  string `json:"sign_url,omitempty"`
	SignedAt string `json:"signed_at,omitempty"`
}

// DocumentHandle is the provider's current view of one document. Raw keeps
// the untyped payload because the provider varies field names across
// endpoints and the signing URL must be searched for, not bound to a schema.
type DocumentHandle struct {
	ProviderDocumentID string
	Status             string
	Artifacts          map[ArtifactKind]string
	Signers            []ProviderSignerState
	Raw                map[string]any
}

// EnvelopeSigner is the per-signer slice of an Envelope.
type EnvelopeSigner struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	SignURL string `json:"sign_url,omitempty"`
}

// Envelope is the stable result of envelope creation. Every other layer of
// the application depends on this shape, never on raw provider fields.
type Envelope struct {
	ID         string           `json:"id"`
	Status     string           `json:"status"`
	Signers    []EnvelopeSigner `json:"signers"`
	SigningURL string           `json:"signing_url,omitempty"`
}

// SignerStatus is the per-signer slice of an EnvelopeStatus.
type SignerStatus struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Signed   bool   `json:"signed"`
	SignedAt string `json:"signed_at,omitempty"`
}

// EnvelopeStatus is the polling view of an envelope. It is derived fresh on
// every call; signer completion changes out of band in the provider's own UI.
type EnvelopeStatus struct {
	ID                string         `json:"id"`
	Status            string         `json:"status"`
	SignedDocumentURL string         `json:"signed_document_url,omitempty"`
	SigningURL        string         `json:"signing_url,omitempty"`
	Signers           []SignerStatus `json:"signers"`
}

// EnvelopeRecord is the local bookkeeping entry the marketplace keeps per
// envelope. The orchestrator itself is stateless; this belongs to the
// calling layer.
type EnvelopeRecord struct {
	ID                 string    `json:"id"`
	ProviderDocumentID string    `json:"provider_document_id"`
	Filename           string    `json:"filename"`
	Tenant             string    `json:"tenant"`
	ArchiveURL         string    `json:"archive_url,omitempty"`
	Status             string    `json:"status"`
	SigningURL         string    `json:"signing_url,omitempty"`
	ErrorMsg           string    `json:"error_msg,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}
