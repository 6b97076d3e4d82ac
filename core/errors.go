package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorCodeConfiguration         = "INTEGRATION_CONFIGURATION"
	ErrorCodeAuthorization         = "INTEGRATION_AUTHORIZATION"
	ErrorCodeSignatureInvalid      = "INTEGRATION_SIGNATURE_INVALID"
	ErrorCodeNormalization         = "INTEGRATION_NORMALIZATION"
	ErrorCodeNetwork               = "INTEGRATION_NETWORK"
	ErrorCodePersistence           = "INTEGRATION_PERSISTENCE"
	ErrorCodeUnsupportedPlatform   = "INTEGRATION_UNSUPPORTED_PLATFORM"
	ErrorCodeBadInput              = "INTEGRATION_BAD_INPUT"
	ErrorCodeInternal              = "INTEGRATION_INTERNAL_ERROR"
	ErrorCodeOAuthStateInvalid     = "INTEGRATION_OAUTH_STATE_INVALID"
	ErrorCodeCredentialNotFound    = "INTEGRATION_CREDENTIAL_NOT_FOUND"
	ErrorCodeSubscriptionNotFound  = "INTEGRATION_SUBSCRIPTION_NOT_FOUND"
	ErrorCodeEventNotFound         = "INTEGRATION_EVENT_NOT_FOUND"
	ErrorCodeInvalidStateChange    = "INTEGRATION_INVALID_STATE_TRANSITION"
	ErrorCodeSyncRequestNotAllowed = "INTEGRATION_SYNC_NOT_ALLOWED"
)

// ErrorKind is the closed set of failure kinds surfaced by the pipeline.
type ErrorKind string

const (
	KindConfiguration         ErrorKind = "configuration"
	KindAuthorization         ErrorKind = "authorization"
	KindSignatureVerification ErrorKind = "signature_verification"
	KindNormalization         ErrorKind = "normalization"
	KindNetwork               ErrorKind = "network"
	KindPersistence           ErrorKind = "persistence"
	KindUnsupportedPlatform   ErrorKind = "unsupported_platform"
	KindBadInput              ErrorKind = "bad_input"
	KindInternal              ErrorKind = "internal"
)

// ExchangeFailureCause tells callers of ExchangeCode why the exchange failed.
type ExchangeFailureCause string

const (
	ExchangeFailureConfiguration ExchangeFailureCause = "configuration"
	ExchangeFailureRejected      ExchangeFailureCause = "rejected"
	ExchangeFailureNetwork       ExchangeFailureCause = "network"
)

type kindSpec struct {
	category goerrors.Category
	status   int
	textCode string
}

var kindSpecs = map[ErrorKind]kindSpec{
	KindConfiguration:         {goerrors.CategoryInternal, http.StatusInternalServerError, ErrorCodeConfiguration},
	KindAuthorization:         {goerrors.CategoryAuth, http.StatusUnauthorized, ErrorCodeAuthorization},
	KindSignatureVerification: {goerrors.CategoryAuth, http.StatusUnauthorized, ErrorCodeSignatureInvalid},
	KindNormalization:         {goerrors.CategoryBadInput, http.StatusBadRequest, ErrorCodeNormalization},
	KindNetwork:               {goerrors.CategoryExternal, http.StatusBadGateway, ErrorCodeNetwork},
	KindPersistence:           {goerrors.CategoryInternal, http.StatusInternalServerError, ErrorCodePersistence},
	KindUnsupportedPlatform:   {goerrors.CategoryBadInput, http.StatusBadRequest, ErrorCodeUnsupportedPlatform},
	KindBadInput:              {goerrors.CategoryBadInput, http.StatusBadRequest, ErrorCodeBadInput},
	KindInternal:              {goerrors.CategoryInternal, http.StatusInternalServerError, ErrorCodeInternal},
}

// ConfigurationError reports a missing client id, secret or endpoint. It only
// affects the named platform.
func ConfigurationError(platform string, message string) error {
	return newKindError(KindConfiguration, message, nil, platformMetadata(platform, nil))
}

// AuthorizationError reports an invalid code, a revoked token or a rejected
// refresh grant. Callers should prompt for re-authorization.
func AuthorizationError(platform string, message string, source error) error {
	return newKindError(KindAuthorization, message, source, platformMetadata(platform, nil))
}

func SignatureVerificationError(platform string, deliveryID string, source error) error {
	return newKindError(
		KindSignatureVerification,
		"webhooks: signature verification failed",
		source,
		platformMetadata(platform, map[string]any{"delivery_id": strings.TrimSpace(deliveryID)}),
	)
}

func NormalizationError(platform string, eventType string, source error) error {
	return newKindError(
		KindNormalization,
		"normalize: unexpected payload shape",
		source,
		platformMetadata(platform, map[string]any{"event_type": strings.TrimSpace(eventType)}),
	)
}

func NetworkError(platform string, message string, source error) error {
	return newKindError(KindNetwork, message, source, platformMetadata(platform, nil))
}

func PersistenceError(message string, source error) error {
	return newKindError(KindPersistence, message, source, nil)
}

func UnsupportedPlatformError(platform string) error {
	platform = strings.TrimSpace(platform)
	return newKindError(
		KindUnsupportedPlatform,
		"core: unsupported platform "+quote(platform),
		nil,
		platformMetadata(platform, nil),
	)
}

func BadInputError(message string, metadata map[string]any) error {
	return newKindError(KindBadInput, message, nil, metadata)
}

func InternalError(message string, source error) error {
	return newKindError(KindInternal, message, source, nil)
}

// OAuthExchangeError tags an authorization code exchange failure with its
// cause so the callback surface can render a specific message.
func OAuthExchangeError(platform string, cause ExchangeFailureCause, source error) error {
	kind := KindAuthorization
	message := "core: authorization code was rejected by " + quote(platform)
	switch cause {
	case ExchangeFailureConfiguration:
		kind = KindConfiguration
		message = "core: platform " + quote(platform) + " is not configured for oauth"
	case ExchangeFailureNetwork:
		kind = KindNetwork
		message = "core: token endpoint for " + quote(platform) + " is unreachable"
	}
	return newKindError(kind, message, source, platformMetadata(platform, map[string]any{
		"operation": "oauth_exchange",
		"cause":     string(cause),
	}))
}

// TokenRefreshError wraps a refresh failure. Provider rejections surface as
// authorization errors, transport failures keep the network kind.
func TokenRefreshError(platform string, source error) error {
	kind := KindAuthorization
	message := "core: token refresh rejected for " + quote(platform)
	switch KindOf(source) {
	case KindNetwork:
		kind = KindNetwork
		message = "core: token refresh failed for " + quote(platform)
	case KindConfiguration:
		kind = KindConfiguration
		message = "core: platform " + quote(platform) + " is not configured for token refresh"
	}
	return newKindError(kind, message, source, platformMetadata(platform, map[string]any{
		"operation": "token_refresh",
	}))
}

// KindOf recovers the kind of an error produced by this package. Errors that
// never passed through a kind constructor report KindInternal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich == nil {
		return KindInternal
	}
	switch strings.TrimSpace(rich.TextCode) {
	case ErrorCodeConfiguration:
		return KindConfiguration
	case ErrorCodeAuthorization, ErrorCodeOAuthStateInvalid, ErrorCodeCredentialNotFound:
		return KindAuthorization
	case ErrorCodeSignatureInvalid:
		return KindSignatureVerification
	case ErrorCodeNormalization:
		return KindNormalization
	case ErrorCodeNetwork:
		return KindNetwork
	case ErrorCodePersistence:
		return KindPersistence
	case ErrorCodeUnsupportedPlatform:
		return KindUnsupportedPlatform
	case ErrorCodeBadInput, ErrorCodeInvalidStateChange:
		return KindBadInput
	}
	switch rich.Category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return KindBadInput
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return KindAuthorization
	case goerrors.CategoryExternal:
		return KindNetwork
	}
	return KindInternal
}

func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// MapError converts any error into the integration error envelope.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return ensureErrorEnvelope(rich)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return ensureErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryBadInput).
			WithTextCode(ErrorCodeBadInput))
	case strings.Contains(msg, "not found"):
		return ensureErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryNotFound))
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureErrorEnvelope(mapped)
}

// HTTPStatus is the response status for err.
func HTTPStatus(err error) int {
	mapped := MapError(err)
	if mapped == nil {
		return http.StatusOK
	}
	return mapped.Code
}

func newKindError(kind ErrorKind, message string, source error, metadata map[string]any) error {
	spec, ok := kindSpecs[kind]
	if !ok {
		spec = kindSpecs[KindInternal]
		kind = KindInternal
	}
	var err *goerrors.Error
	if source != nil {
		err = goerrors.Wrap(source, spec.category, message)
	} else {
		err = goerrors.New(message, spec.category)
	}
	err = err.WithCode(spec.status).WithTextCode(spec.textCode)
	fields := copyAnyMap(metadata)
	fields["kind"] = string(kind)
	err.WithMetadata(fields)
	return err
}

// NotFoundError reports a missing record under a specific text code.
func NotFoundError(textCode string, message string, metadata map[string]any) error {
	return newCodedError(message, goerrors.CategoryNotFound, http.StatusNotFound, textCode, metadata)
}

func newCodedError(message string, category goerrors.Category, status int, textCode string, metadata map[string]any) error {
	err := goerrors.New(message, category).
		WithCode(status).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = categoryHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorCodeBadInput
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ErrorCodeAuthorization
	case goerrors.CategoryExternal:
		return ErrorCodeNetwork
	default:
		return ErrorCodeInternal
	}
}

func categoryHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func platformMetadata(platform string, extra map[string]any) map[string]any {
	out := copyAnyMap(extra)
	if trimmed := strings.TrimSpace(platform); trimmed != "" {
		out["platform"] = trimmed
	}
	return out
}

func quote(value string) string {
	return "\"" + value + "\""
}
