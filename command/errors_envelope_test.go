package command

import (
	"context"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-integrations/core"
)

func TestSyncAppMessage_ValidateReturnsRichError(t *testing.T) {
	err := (SyncAppMessage{Platform: "github"}).Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryValidation {
		t.Fatalf("expected validation category, got %q", rich.Category)
	}
	if rich.TextCode != core.ErrorCodeBadInput {
		t.Fatalf("expected %q text code, got %q", core.ErrorCodeBadInput, rich.TextCode)
	}
	if rich.Code != http.StatusBadRequest {
		t.Fatalf("expected %d code, got %d", http.StatusBadRequest, rich.Code)
	}
	validation := rich.AllValidationErrors()
	if len(validation) == 0 || validation[0].Field != "app_id" {
		t.Fatalf("expected app_id validation field, got %+v", validation)
	}
	if core.HTTPStatus(err) != http.StatusBadRequest {
		t.Fatalf("expected mapped status 400, got %d", core.HTTPStatus(err))
	}
}

func TestDisconnectCommand_NilServiceReturnsRichError(t *testing.T) {
	var cmd *DisconnectCommand
	err := cmd.Execute(context.Background(), DisconnectMessage{Platform: "github"})
	if err == nil {
		t.Fatalf("expected command dependency error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
}
