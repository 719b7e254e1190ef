package framework

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind groups error codes by how a caller should react to them.
type ErrorKind string

const (
	// KindValidation is a missing or malformed input. Nothing was changed.
	KindValidation ErrorKind = "validation"
	// KindNotFound is an unknown request, nonce, key or reference. Nothing was changed.
	KindNotFound ErrorKind = "not_found"
	// KindConflict is an operation the current state does not allow. Nothing was changed.
	KindConflict ErrorKind = "conflict"
	// KindExternal is a failure of the blob store or the ledger.
	KindExternal ErrorKind = "external"
	// KindInternal is anything else.
	KindInternal ErrorKind = "internal"
)

// ErrorCode is a stable, machine readable identifier for a failure.
type ErrorCode string

const (
	CodeRequestNotFound          ErrorCode = "RequestNotFound"
	CodeInvalidState             ErrorCode = "InvalidState"
	CodeInvalidTransition        ErrorCode = "InvalidTransition"
	CodeNonceNotFound            ErrorCode = "NonceNotFound"
	CodeNonceRequestMismatch     ErrorCode = "NonceRequestMismatch"
	CodeNonceExpired             ErrorCode = "NonceExpired"
	CodeNonceAlreadyUsed         ErrorCode = "NonceAlreadyUsed"
	CodeNonceSuperseded          ErrorCode = "NonceSuperseded"
	CodeOwnershipMismatch        ErrorCode = "OwnershipMismatch"
	CodeInvalidSignature         ErrorCode = "InvalidSignature"
	CodeMissingRequiredField     ErrorCode = "MissingRequiredField"
	CodeUnknownCredentialType    ErrorCode = "UnknownCredentialType"
	CodeUnknownField             ErrorCode = "UnknownField"
	CodeSigningFailure           ErrorCode = "SigningFailure"
	CodeBlobStoreFailure         ErrorCode = "BlobStoreFailure"
	CodeBlobNotFound             ErrorCode = "BlobNotFound"
	CodeLedgerFailure            ErrorCode = "LedgerFailure"
	CodeAnchorConflict           ErrorCode = "AnchorConflict"
	CodeAnchorNotFound           ErrorCode = "AnchorNotFound"
	CodeMissingOriginalSignature ErrorCode = "MissingOriginalSignature"
	CodeNoDisclosedFields        ErrorCode = "NoDisclosedFields"
	CodeDerivationFailure        ErrorCode = "DerivationFailure"
	CodeMalformedPresentation    ErrorCode = "MalformedPresentation"
	CodeMalformedCredential      ErrorCode = "MalformedCredential"
	CodeKeyNotFound              ErrorCode = "KeyNotFound"
	CodeMalformedDID             ErrorCode = "MalformedDID"
)

var codeKinds = map[ErrorCode]ErrorKind{
	CodeRequestNotFound:          KindNotFound,
	CodeInvalidState:             KindConflict,
	CodeInvalidTransition:        KindConflict,
	CodeNonceNotFound:            KindNotFound,
	CodeNonceRequestMismatch:     KindConflict,
	CodeNonceExpired:             KindConflict,
	CodeNonceAlreadyUsed:         KindConflict,
	CodeNonceSuperseded:          KindConflict,
	CodeOwnershipMismatch:        KindConflict,
	CodeInvalidSignature:         KindValidation,
	CodeMissingRequiredField:     KindValidation,
	CodeUnknownCredentialType:    KindValidation,
	CodeUnknownField:             KindValidation,
	CodeSigningFailure:           KindInternal,
	CodeBlobStoreFailure:         KindExternal,
	CodeBlobNotFound:             KindNotFound,
	CodeLedgerFailure:            KindExternal,
	CodeAnchorConflict:           KindConflict,
	CodeAnchorNotFound:           KindNotFound,
	CodeMissingOriginalSignature: KindValidation,
	CodeNoDisclosedFields:        KindValidation,
	CodeDerivationFailure:        KindInternal,
	CodeMalformedPresentation:    KindValidation,
	CodeMalformedCredential:      KindValidation,
	CodeKeyNotFound:              KindNotFound,
	CodeMalformedDID:             KindValidation,
}

// Sentinels for errors.Is. Any *Error with the same code matches.
var (
	ErrRequestNotFound          = &Error{Code: CodeRequestNotFound}
	ErrInvalidState             = &Error{Code: CodeInvalidState}
	ErrInvalidTransition        = &Error{Code: CodeInvalidTransition}
	ErrNonceNotFound            = &Error{Code: CodeNonceNotFound}
	ErrNonceRequestMismatch     = &Error{Code: CodeNonceRequestMismatch}
	ErrNonceExpired             = &Error{Code: CodeNonceExpired}
	ErrNonceAlreadyUsed         = &Error{Code: CodeNonceAlreadyUsed}
	ErrNonceSuperseded          = &Error{Code: CodeNonceSuperseded}
	ErrOwnershipMismatch        = &Error{Code: CodeOwnershipMismatch}
	ErrInvalidSignature         = &Error{Code: CodeInvalidSignature}
	ErrMissingRequiredField     = &Error{Code: CodeMissingRequiredField}
	ErrUnknownCredentialType    = &Error{Code: CodeUnknownCredentialType}
	ErrUnknownField             = &Error{Code: CodeUnknownField}
	ErrSigningFailure           = &Error{Code: CodeSigningFailure}
	ErrBlobStoreFailure         = &Error{Code: CodeBlobStoreFailure}
	ErrBlobNotFound             = &Error{Code: CodeBlobNotFound}
	ErrLedgerFailure            = &Error{Code: CodeLedgerFailure}
	ErrAnchorConflict           = &Error{Code: CodeAnchorConflict}
	ErrAnchorNotFound           = &Error{Code: CodeAnchorNotFound}
	ErrMissingOriginalSignature = &Error{Code: CodeMissingOriginalSignature}
	ErrNoDisclosedFields        = &Error{Code: CodeNoDisclosedFields}
	ErrDerivationFailure        = &Error{Code: CodeDerivationFailure}
	ErrMalformedPresentation    = &Error{Code: CodeMalformedPresentation}
	ErrMalformedCredential      = &Error{Code: CodeMalformedCredential}
	ErrKeyNotFound              = &Error{Code: CodeKeyNotFound}
	ErrMalformedDID             = &Error{Code: CodeMalformedDID}
)

// Error is a structured service error. It is returned to callers as is, and survives wrapping by
// github.com/pkg/errors.
type Error struct {
	Code    ErrorCode
	Message string
	cause   error
}

// NewError creates an Error for the given code.
func NewError(code ErrorCode, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// NewErrorf creates an Error for the given code with a formatted message.
func NewErrorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates an Error for the given code that carries an underlying cause.
func WrapError(code ErrorCode, err error, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

func (e *Error) Kind() ErrorKind {
	if k, ok := codeKinds[e.Code]; ok {
		return k
	}
	return KindInternal
}

func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// AsError returns the first *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr, true
	}
	return nil, false
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) ErrorKind {
	if svcErr, ok := AsError(err); ok {
		return svcErr.Kind()
	}
	return KindInternal
}
