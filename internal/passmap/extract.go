package passmap

import (
	"fmt"
	"strings"

	"github.com/and161185/onepass/internal/errs"
	"github.com/and161185/onepass/internal/model"
)

// Rejection reasons reported in RejectionError.
const (
	ReasonMissing     = "missing"
	ReasonBlank       = "blank"
	ReasonNotPositive = "not positive"
	ReasonNegative    = "negative"
	ReasonNotNumeric  = "not numeric"
	ReasonCharset     = "disallowed character"
)

// RejectionError describes the first required field that failed validation.
type RejectionError struct {
	Field  string
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s: %s: %s", errs.ErrRejected, e.Field, e.Reason)
}

// Unwrap allows errors.Is(err, errs.ErrRejected).
func (e *RejectionError) Unwrap() error { return errs.ErrRejected }

func reject(field, reason string) error {
	return &RejectionError{Field: field, Reason: reason}
}

// Parse validates raw and builds a Pass, failing on the first required-field violation.
// Optional audit fields never cause a rejection.
func Parse(raw model.RawRecord) (model.Pass, error) {
	if raw == nil {
		return model.Pass{}, reject("document", ReasonMissing)
	}

	uid, err := requiredString(raw, model.FieldUID)
	if err != nil {
		return model.Pass{}, err
	}
	kid, err := requiredString(raw, model.FieldKID)
	if err != nil {
		return model.Pass{}, err
	}

	issuedAt, ok := EpochSeconds(raw[model.FieldIssuedAt])
	if !ok {
		return model.Pass{}, reject(model.FieldIssuedAt, ReasonMissing)
	}
	if issuedAt <= 0 {
		return model.Pass{}, reject(model.FieldIssuedAt, ReasonNotPositive)
	}

	version := int64(1)
	if v, present := raw[model.FieldVersion]; present {
		n, ok := wholeNumber(v)
		if !ok {
			return model.Pass{}, reject(model.FieldVersion, ReasonNotNumeric)
		}
		if n < 0 {
			return model.Pass{}, reject(model.FieldVersion, ReasonNegative)
		}
		version = n
	}

	signature, err := requiredString(raw, model.FieldSignature)
	if err != nil {
		return model.Pass{}, err
	}
	if !validSignature(signature) {
		return model.Pass{}, reject(model.FieldSignature, ReasonCharset)
	}

	active := true
	if b, ok := raw[model.FieldActive].(bool); ok {
		active = b
	}

	return model.Pass{
		UID:           uid,
		KID:           kid,
		IssuedAt:      issuedAt,
		Version:       version,
		Active:        active,
		Signature:     signature,
		LastScannedAt: optionalSeconds(raw, model.FieldLastScannedAt),
		RevokedAt:     optionalSeconds(raw, model.FieldRevokedAt),
	}, nil
}

// requiredString reads a string field; non-strings count as absent. The result is trimmed.
func requiredString(raw model.RawRecord, field string) (string, error) {
	v, present := raw[field]
	if !present || v == nil {
		return "", reject(field, ReasonMissing)
	}
	s, ok := v.(string)
	if !ok {
		return "", reject(field, ReasonMissing)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", reject(field, ReasonBlank)
	}
	return s, nil
}

func optionalSeconds(raw model.RawRecord, field string) *int64 {
	n, ok := EpochSeconds(raw[field])
	if !ok {
		return nil
	}
	return &n
}

// validSignature reports whether s consists only of ASCII letters, digits, '_' and '-'.
func validSignature(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
		default:
			return false
		}
	}
	return true
}
