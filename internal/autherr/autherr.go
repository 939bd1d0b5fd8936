// Package autherr defines the denial taxonomy shared by every verification
// path. A denial is terminal and non-retryable: it is a definitive
// authorization or validation decision, never a transient condition.
// Infrastructure failures (store, network) are NOT represented here; they
// propagate as plain wrapped errors.
package autherr

import (
	"errors"
	"net/http"
)

type Kind string

const (
	KindMissingHeader       Kind = "MISSING_HEADER"
	KindMultipleAPIKey      Kind = "MULTIPLE_API_KEY"
	KindInvalidToken        Kind = "INVALID_TOKEN"
	KindTokenExpired        Kind = "TOKEN_EXPIRED"
	KindNotAuthorized       Kind = "NOT_AUTHORIZED"
	KindDeactivatedUser     Kind = "DEACTIVATED_USER"
	KindAPIKeyNull          Kind = "API_KEY_NULL"
	KindAPIKeyInvalid       Kind = "API_KEY_INVALID"
	KindAPIKeyInactive      Kind = "API_KEY_INACTIVE"
	KindAPIKeyExpired       Kind = "API_KEY_EXPIRED"
	KindAPIKeyOutOfScope    Kind = "API_KEY_OUT_OF_SCOPE"
	KindAPISignatureNull    Kind = "API_SIGNATURE_NULL"
	KindAPISignatureInvalid Kind = "API_SIGNATURE_INVALID"
	KindAPIRequestExpired   Kind = "API_REQUEST_EXPIRED"
	KindInvalidCaptcha      Kind = "INVALID_CAPTCHA"
	KindInvalidOTPCode      Kind = "INVALID_OTP_CODE"
	KindOTPMustBeEnabled    Kind = "OTP_MUST_BE_ENABLED"
	KindTokenNotFound       Kind = "TOKEN_NOT_FOUND"
	KindTokenRevoked        Kind = "TOKEN_REVOKED"
	KindInvalidPassword     Kind = "INVALID_PASSWORD"
	KindSamePassword        Kind = "SAME_PASSWORD"
	KindCodeNotFound        Kind = "CODE_NOT_FOUND"
	KindCodeUsed            Kind = "CODE_USED"
)

// Error carries a stable machine-readable kind plus a human-readable message.
// The calling edge maps the kind to its transport representation.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Message
}

func E(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// KindOf extracts the denial kind from an error chain. The second return is
// false for infrastructure errors, which must not be presented as denials.
func KindOf(err error) (Kind, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind, true
	}
	return "", false
}

// HTTPStatus maps a denial kind to its HTTP representation: authorization
// denials are 403, missing recovery codes are 404, validation failures 400.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindCodeNotFound, KindTokenNotFound:
		return http.StatusNotFound
	case KindInvalidPassword, KindSamePassword, KindInvalidCaptcha,
		KindInvalidOTPCode, KindOTPMustBeEnabled:
		return http.StatusBadRequest
	default:
		return http.StatusForbidden
	}
}
