// Package model defines domain entities used by services and repositories.
package model

// Document field names of a stored pass.
const (
	FieldUID           = "uid"
	FieldKID           = "kid"
	FieldIssuedAt      = "issuedAt"
	FieldVersion       = "version"
	FieldActive        = "active"
	FieldSignature     = "signature"
	FieldLastScannedAt = "lastScannedAt"
	FieldRevokedAt     = "revokedAt"
	FieldRevokedReason = "revokedReason"
	FieldScannedBy     = "scannedBy"
)

// Status labels derived from a pass.
const (
	StatusActive   = "Active"
	StatusRevoked  = "Revoked"
	StatusInactive = "Inactive"
)

// RawRecord is a loosely typed pass document as delivered by the store.
// Values may be numbers of any width, json.Number, strings, bools, timestamps, maps, slices or nil.
type RawRecord map[string]any

// Snapshot is one observation of the backing document.
type Snapshot struct {
	Record RawRecord // nil when Exists==false
	Exists bool
}

// Pass is a validated pass. Values are immutable snapshots; a new document yields a new Pass.
type Pass struct {
	UID           string
	KID           string
	IssuedAt      int64 // epoch seconds, > 0
	Version       int64 // >= 0, defaults to 1
	Active        bool
	Signature     string // [A-Za-z0-9_-]+
	LastScannedAt *int64 // epoch seconds, nil when unset
	RevokedAt     *int64 // epoch seconds, nil when unset
}

// IsValidNow reports whether the pass is active and not revoked.
func (p Pass) IsValidNow() bool {
	return p.Active && p.RevokedAt == nil
}

// StatusText returns the human status label.
func (p Pass) StatusText() string {
	switch {
	case p.RevokedAt != nil:
		return StatusRevoked
	case !p.Active:
		return StatusInactive
	default:
		return StatusActive
	}
}
