package core

import (
	stderrors "errors"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestKindConstructors_AssignStableEnvelope(t *testing.T) {
	cases := []struct {
		err      error
		kind     ErrorKind
		status   int
		textCode string
	}{
		{ConfigurationError("github", "missing client id"), KindConfiguration, http.StatusInternalServerError, ErrorCodeConfiguration},
		{AuthorizationError("github", "revoked", nil), KindAuthorization, http.StatusUnauthorized, ErrorCodeAuthorization},
		{SignatureVerificationError("github", "d-1", nil), KindSignatureVerification, http.StatusUnauthorized, ErrorCodeSignatureInvalid},
		{NormalizationError("github", "push", nil), KindNormalization, http.StatusBadRequest, ErrorCodeNormalization},
		{NetworkError("github", "timeout", nil), KindNetwork, http.StatusBadGateway, ErrorCodeNetwork},
		{PersistenceError("write failed", nil), KindPersistence, http.StatusInternalServerError, ErrorCodePersistence},
		{UnsupportedPlatformError("myspace"), KindUnsupportedPlatform, http.StatusBadRequest, ErrorCodeUnsupportedPlatform},
		{BadInputError("missing header", nil), KindBadInput, http.StatusBadRequest, ErrorCodeBadInput},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.kind {
			t.Fatalf("expected kind %q, got %q", tc.kind, got)
		}
		var rich *goerrors.Error
		if !goerrors.As(tc.err, &rich) {
			t.Fatalf("expected go-errors type, got %T", tc.err)
		}
		if rich.Code != tc.status || rich.TextCode != tc.textCode {
			t.Fatalf("kind %q: expected %d/%s, got %d/%s", tc.kind, tc.status, tc.textCode, rich.Code, rich.TextCode)
		}
		if HTTPStatus(tc.err) != tc.status {
			t.Fatalf("kind %q: expected http status %d", tc.kind, tc.status)
		}
	}
}

func TestOAuthExchangeError_MapsCauseToKind(t *testing.T) {
	source := stderrors.New("boom")
	if kind := KindOf(OAuthExchangeError("github", ExchangeFailureConfiguration, source)); kind != KindConfiguration {
		t.Fatalf("expected configuration, got %q", kind)
	}
	if kind := KindOf(OAuthExchangeError("github", ExchangeFailureRejected, source)); kind != KindAuthorization {
		t.Fatalf("expected authorization, got %q", kind)
	}
	if kind := KindOf(OAuthExchangeError("github", ExchangeFailureNetwork, source)); kind != KindNetwork {
		t.Fatalf("expected network, got %q", kind)
	}
}

func TestTokenRefreshError_KeepsNetworkKind(t *testing.T) {
	err := TokenRefreshError("github", NetworkError("github", "connection reset", nil))
	if KindOf(err) != KindNetwork {
		t.Fatalf("expected network kind, got %q", KindOf(err))
	}
	err = TokenRefreshError("github", stderrors.New("invalid_grant"))
	if KindOf(err) != KindAuthorization {
		t.Fatalf("expected authorization kind, got %q", KindOf(err))
	}
}

func TestMapError_WrapsPlainErrors(t *testing.T) {
	mapped := MapError(stderrors.New("platform is required"))
	if mapped == nil || mapped.Category != goerrors.CategoryBadInput || mapped.Code != http.StatusBadRequest {
		t.Fatalf("expected bad input envelope, got %+v", mapped)
	}
	mapped = MapError(stderrors.New("disk on fire"))
	if mapped == nil || mapped.Code == 0 || mapped.TextCode == "" {
		t.Fatalf("expected populated fallback envelope, got %+v", mapped)
	}
	if MapError(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
	if KindOf(stderrors.New("plain")) != KindInternal {
		t.Fatalf("expected plain errors to be internal")
	}
}

func TestNotFoundError_UsesTextCode(t *testing.T) {
	err := NotFoundError(ErrorCodeEventNotFound, "missing", map[string]any{"platform": "github"})
	if HTTPStatus(err) != 404 {
		t.Fatalf("expected 404, got %d", HTTPStatus(err))
	}
	mapped := MapError(err)
	if mapped.TextCode != ErrorCodeEventNotFound {
		t.Fatalf("unexpected text code %q", mapped.TextCode)
	}
}
