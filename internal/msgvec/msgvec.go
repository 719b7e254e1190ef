// Package msgvec maps a credential's attributes to the ordered list of byte strings that is signed, and
// later selectively disclosed. The order for each credential type is part of the wire contract: signer,
// holder and verifier must produce byte-identical vectors or proofs will not verify.
package msgvec

import (
	"sort"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// CredentialType is the kind of credential being issued. Each type has exactly one layout.
type CredentialType string

const (
	// StudentID is the basic identity credential.
	StudentID CredentialType = "StudentID"
	// AcademicCertificate is the extended academic credential.
	AcademicCertificate CredentialType = "AcademicCertificate"
)

// Names of the fields every layout ends with.
const (
	FieldSubjectID    = "id"
	FieldIssuer       = "issuer"
	FieldIssuanceDate = "issuanceDate"
	FieldDocumentHash = "documentHash"
)

var layouts = map[CredentialType][]string{
	StudentID: {
		"name",
		"rollNumber",
		"dateOfBirth",
		"department",
		FieldSubjectID,
		FieldIssuer,
		FieldIssuanceDate,
		FieldDocumentHash,
	},
	AcademicCertificate: {
		"name",
		"registerNumber",
		"degree",
		"branch",
		"institution",
		"location",
		"score",
		"class",
		"examPeriod",
		"issuedDate",
		FieldSubjectID,
		FieldIssuer,
		FieldIssuanceDate,
		FieldDocumentHash,
	},
}

// requiredFields must be present and non-empty in the subject for issuance.
var requiredFields = map[CredentialType][]string{
	StudentID:           {"name", "rollNumber", FieldSubjectID},
	AcademicCertificate: {"name", "registerNumber", "degree", FieldSubjectID},
}

// envelopeFields are taken from the credential itself rather than its subject.
var envelopeFields = map[string]bool{
	FieldIssuer:       true,
	FieldIssuanceDate: true,
	FieldDocumentHash: true,
}

// Vector is an encoded credential.
type Vector struct {
	Type       CredentialType
	Messages   [][]byte
	FieldIndex map[string]int
}

// IsSupported reports whether t has a layout.
func IsSupported(t CredentialType) bool {
	_, ok := layouts[t]
	return ok
}

// SupportedTypes lists every credential type with a layout.
func SupportedTypes() []CredentialType {
	return []CredentialType{StudentID, AcademicCertificate}
}

// Fields returns the ordered layout of t, or nil if t is unknown.
func Fields(t CredentialType) []string {
	layout, ok := layouts[t]
	if !ok {
		return nil
	}
	return append([]string(nil), layout...)
}

// SubjectFields returns the layout fields that live in the credential subject.
func SubjectFields(t CredentialType) []string {
	var fields []string
	for _, f := range layouts[t] {
		if !envelopeFields[f] {
			fields = append(fields, f)
		}
	}
	return fields
}

// IsEnvelopeField reports whether the field is read from the credential envelope rather than its subject.
func IsEnvelopeField(field string) bool {
	return envelopeFields[field]
}

// RequiredFields returns the subject fields issuance insists on for t.
func RequiredFields(t CredentialType) []string {
	return append([]string(nil), requiredFields[t]...)
}

// FieldIndex returns the name to position map for t.
func FieldIndex(t CredentialType) map[string]int {
	layout := layouts[t]
	index := make(map[string]int, len(layout))
	for i, f := range layout {
		index[f] = i
	}
	return index
}

// Encode produces the message vector for a credential. Absent values encode as empty byte strings so that
// positions never shift. Encode is pure: the same inputs always yield byte-identical output.
func Encode(t CredentialType, subject map[string]any, issuer, issuanceDate, documentHash string) (*Vector, error) {
	layout, ok := layouts[t]
	if !ok {
		return nil, errors.Errorf("unsupported credential type: %s", t)
	}

	envelope := map[string]string{
		FieldIssuer:       issuer,
		FieldIssuanceDate: issuanceDate,
		FieldDocumentHash: documentHash,
	}

	messages := make([][]byte, len(layout))
	for i, field := range layout {
		if v, isEnvelope := envelope[field]; isEnvelope {
			messages[i] = []byte(v)
			continue
		}
		encoded, err := EncodeValue(subject[field])
		if err != nil {
			return nil, errors.Wrapf(err, "encoding field<%s>", field)
		}
		messages[i] = encoded
	}

	return &Vector{Type: t, Messages: messages, FieldIndex: FieldIndex(t)}, nil
}

// EncodeValue is the canonical byte form of a single attribute value.
func EncodeValue(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return []byte{}, nil
	case string:
		return []byte(val), nil
	case []byte:
		return val, nil
	case bool:
		return []byte(strconv.FormatBool(val)), nil
	case int:
		return []byte(strconv.Itoa(val)), nil
	case int64:
		return []byte(strconv.FormatInt(val, 10)), nil
	case float64:
		return []byte(strconv.FormatFloat(val, 'f', -1, 64)), nil
	case json.Number:
		return []byte(val.String()), nil
	default:
		// maps and slices serialize with sorted keys, so this stays deterministic
		return json.Marshal(val)
	}
}

// IndicesFor maps field names to positions, dropping names the layout does not know. The result is sorted
// ascending and free of duplicates.
func IndicesFor(fields []string, fieldIndex map[string]int) []int {
	seen := make(map[int]bool, len(fields))
	indices := make([]int, 0, len(fields))
	for _, f := range fields {
		i, ok := fieldIndex[f]
		if !ok || seen[i] {
			continue
		}
		seen[i] = true
		indices = append(indices, i)
	}
	sort.Ints(indices)
	return indices
}

// UnknownFields returns the names in fields that fieldIndex does not contain.
func UnknownFields(fields []string, fieldIndex map[string]int) []string {
	var unknown []string
	for _, f := range fields {
		if _, ok := fieldIndex[f]; !ok {
			unknown = append(unknown, f)
		}
	}
	return unknown
}

// FieldsFor is the inverse of IndicesFor.
func FieldsFor(indices []int, t CredentialType) []string {
	layout := layouts[t]
	fields := make([]string, 0, len(indices))
	for _, i := range indices {
		if i >= 0 && i < len(layout) {
			fields = append(fields, layout[i])
		}
	}
	return fields
}

// Select returns the messages at the given indices, in index order.
func (v *Vector) Select(indices []int) ([][]byte, error) {
	sorted := append([]int(nil), indices...)
	sort.Ints(sorted)
	selected := make([][]byte, 0, len(sorted))
	for _, i := range sorted {
		if i < 0 || i >= len(v.Messages) {
			return nil, errors.Errorf("index %d out of range for %s vector of length %d", i, v.Type, len(v.Messages))
		}
		selected = append(selected, v.Messages[i])
	}
	return selected, nil
}
