package utils

import (
	"context"
	"errors"
	"fmt"
	"strings"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/smithy-go"
)

// ErrorKind classifies a failed remote call so callers can branch without
// inspecting error text.
type ErrorKind string

const (
	KindCredentials   ErrorKind = "credentials"
	KindAlreadyExists ErrorKind = "already_exists"
	KindNotFound      ErrorKind = "not_found"
	KindPermission    ErrorKind = "permission"
	KindPrecondition  ErrorKind = "precondition"
	KindCanceled      ErrorKind = "canceled"
	KindRemote        ErrorKind = "remote"
)

// apiErrorKinds maps AWS API error codes onto kinds. Codes not listed are remote failures.
var apiErrorKinds = map[string]ErrorKind{
	"AlreadyExistsException":      KindAlreadyExists,
	"EntityNotFoundException":     KindNotFound,
	"NoSuchKey":                   KindNotFound,
	"NotFound":                    KindNotFound,
	"NoSuchBucket":                KindNotFound,
	"AccessDenied":                KindPermission,
	"AccessDeniedException":       KindPermission,
	"AllAccessDisabled":           KindPermission,
	"InvalidAccessKeyId":          KindCredentials,
	"SignatureDoesNotMatch":       KindCredentials,
	"ExpiredToken":                KindCredentials,
	"ExpiredTokenException":       KindCredentials,
	"UnrecognizedClientException": KindCredentials,
	"InvalidClientTokenId":        KindCredentials,
}

// credential provider chain failures are not exported as types by every provider
var credentialFailureMarkers = []string{
	"failed to retrieve credentials",
	"failed to refresh cached credentials",
	"no EC2 IMDS role found",
	"get identity",
}

// AppError represents a failed operation with its classification
type AppError struct {
	Kind    ErrorKind `json:"kind"`
	Op      string    `json:"op"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	Cause   error     `json:"-"`
}

func (e *AppError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.Details != "" {
		msg = fmt.Sprintf("%s - %s", msg, e.Details)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// ErrorBuilder provides a fluent interface for creating errors
type ErrorBuilder struct {
	kind    ErrorKind
	op      string
	message string
	details string
	cause   error
}

// NewErrorBuilder creates a new error builder
func NewErrorBuilder(kind ErrorKind) *ErrorBuilder {
	return &ErrorBuilder{kind: kind}
}

// WithOp sets the operation that failed
func (eb *ErrorBuilder) WithOp(op string) *ErrorBuilder {
	eb.op = op
	return eb
}

// WithMessage sets the error message
func (eb *ErrorBuilder) WithMessage(message string) *ErrorBuilder {
	eb.message = message
	return eb
}

// WithDetails sets the error details
func (eb *ErrorBuilder) WithDetails(details string) *ErrorBuilder {
	eb.details = details
	return eb
}

// WithCause sets the underlying error cause
func (eb *ErrorBuilder) WithCause(cause error) *ErrorBuilder {
	eb.cause = cause
	return eb
}

// Build constructs the final AppError
func (eb *ErrorBuilder) Build() *AppError {
	if eb.message == "" {
		eb.message = getDefaultMessage(eb.kind)
	}

	return &AppError{
		Kind:    eb.kind,
		Op:      eb.op,
		Message: eb.message,
		Details: eb.details,
		Cause:   eb.cause,
	}
}

func getDefaultMessage(kind ErrorKind) string {
	messages := map[ErrorKind]string{
		KindCredentials:   "credentials not found or invalid",
		KindAlreadyExists: "resource already exists",
		KindNotFound:      "resource not found",
		KindPermission:    "access denied",
		KindPrecondition:  "precondition not met",
		KindCanceled:      "operation canceled",
		KindRemote:        "remote call failed",
	}

	if msg, exists := messages[kind]; exists {
		return msg
	}
	return "unknown error"
}

// Classify wraps err from a remote call into an AppError. An error that is
// already an AppError is returned unchanged.
func Classify(op string, err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return NewErrorBuilder(KindOf(err)).WithOp(op).WithCause(err).Build()
}

// KindOf determines the kind of a raw SDK or driver error.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCanceled
	}

	var profileErr config.SharedConfigProfileNotExistError
	if errors.As(err, &profileErr) {
		return KindCredentials
	}

	var signingErr *v4.SigningError
	if errors.As(err, &signingErr) {
		return KindCredentials
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if kind, ok := apiErrorKinds[apiErr.ErrorCode()]; ok {
			return kind
		}
		return KindRemote
	}

	msg := err.Error()
	for _, marker := range credentialFailureMarkers {
		if strings.Contains(msg, marker) {
			return KindCredentials
		}
	}

	return KindRemote
}

// Precondition builds the error returned when a required setting is missing.
func Precondition(op, message string) *AppError {
	return NewErrorBuilder(KindPrecondition).WithOp(op).WithMessage(message).Build()
}

// IsKind checks if an error is an AppError of the given kind
func IsKind(err error, kind ErrorKind) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}
