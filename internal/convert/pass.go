// Package convert maps domain passes to and from the protobuf Struct wire shape.
package convert

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	model "github.com/and161185/onepass/internal/model"
)

// Wire keys beyond the document field names.
const (
	KeyPresent  = "present"
	KeyStatus   = "status"
	KeyValidNow = "validNow"
	KeyReason   = "reason"
)

func optional(v *int64) *structpb.Value {
	if v == nil {
		return structpb.NewNullValue()
	}
	return structpb.NewNumberValue(float64(*v))
}

// ToProtoPass encodes p; a nil pass becomes {"present": false}.
func ToProtoPass(p *model.Pass) *structpb.Struct {
	if p == nil {
		return &structpb.Struct{Fields: map[string]*structpb.Value{KeyPresent: structpb.NewBoolValue(false)}}
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		KeyPresent:               structpb.NewBoolValue(true),
		model.FieldUID:           structpb.NewStringValue(p.UID),
		model.FieldKID:           structpb.NewStringValue(p.KID),
		model.FieldIssuedAt:      structpb.NewNumberValue(float64(p.IssuedAt)),
		model.FieldVersion:       structpb.NewNumberValue(float64(p.Version)),
		model.FieldActive:        structpb.NewBoolValue(p.Active),
		model.FieldSignature:     structpb.NewStringValue(p.Signature),
		model.FieldLastScannedAt: optional(p.LastScannedAt),
		model.FieldRevokedAt:     optional(p.RevokedAt),
		KeyStatus:                structpb.NewStringValue(p.StatusText()),
		KeyValidNow:              structpb.NewBoolValue(p.IsValidNow()),
	}}
}

func number(s *structpb.Struct, key string) (int64, error) {
	v, ok := s.GetFields()[key]
	if !ok {
		return 0, fmt.Errorf("missing %s", key)
	}
	if _, ok := v.GetKind().(*structpb.Value_NumberValue); !ok {
		return 0, fmt.Errorf("%s: not a number", key)
	}
	return int64(v.GetNumberValue()), nil
}

func optionalNumber(s *structpb.Struct, key string) *int64 {
	v, ok := s.GetFields()[key]
	if !ok {
		return nil
	}
	if _, ok := v.GetKind().(*structpb.Value_NumberValue); !ok {
		return nil
	}
	n := int64(v.GetNumberValue())
	return &n
}

// FromProtoPass decodes a Struct produced by ToProtoPass; absent passes decode to nil.
func FromProtoPass(s *structpb.Struct) (*model.Pass, error) {
	if s == nil {
		return nil, errors.New("nil pass struct")
	}
	if !s.GetFields()[KeyPresent].GetBoolValue() {
		return nil, nil
	}
	issuedAt, err := number(s, model.FieldIssuedAt)
	if err != nil {
		return nil, err
	}
	version, err := number(s, model.FieldVersion)
	if err != nil {
		return nil, err
	}
	f := s.GetFields()
	return &model.Pass{
		UID:           f[model.FieldUID].GetStringValue(),
		KID:           f[model.FieldKID].GetStringValue(),
		IssuedAt:      issuedAt,
		Version:       version,
		Active:        f[model.FieldActive].GetBoolValue(),
		Signature:     f[model.FieldSignature].GetStringValue(),
		LastScannedAt: optionalNumber(s, model.FieldLastScannedAt),
		RevokedAt:     optionalNumber(s, model.FieldRevokedAt),
	}, nil
}

// StringField returns the string value under key, or "" when missing or not a string.
func StringField(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

// Strings builds a Struct of string values.
func Strings(kv map[string]string) *structpb.Struct {
	out := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(kv))}
	for k, v := range kv {
		out.Fields[k] = structpb.NewStringValue(v)
	}
	return out
}
