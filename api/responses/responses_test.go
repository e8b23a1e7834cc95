package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	pkgerrors "github.com/angelmondragon/dormship-backend/pkg/errors"
	"github.com/angelmondragon/dormship-backend/pkg/logger"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var env ErrorEnvelope
	if err := json.NewDecoder(w.Body).Decode(&env); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	return env.Error
}

func TestWriteSuccessStatusWrapsData(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccessStatus(w, http.StatusCreated, map[string]string{"displayId": "DL-261015-AB12CD"})

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	if got := w.Header().Get("Cache-Control"); got != "no-store" {
		t.Fatalf("expected no-store, got %q", got)
	}
	var env Envelope
	if err := json.NewDecoder(w.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.Data.(map[string]any)["displayId"] != "DL-261015-AB12CD" {
		t.Fatalf("unexpected data %v", env.Data)
	}
}

func TestWriteErrorKeepsTransitionDetails(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeStateConflict, "order cannot move from DELIVERED to CANCELED").
		WithDetails(map[string]string{"from": "DELIVERED", "to": "CANCELED"})
	WriteError(context.Background(), logger.Nop(), w, err)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	body := decodeError(t, w)
	if body.Code != "STATE_CONFLICT" || body.Message != "order cannot move from DELIVERED to CANCELED" {
		t.Fatalf("unexpected body %+v", body)
	}
	if body.Details == nil {
		t.Fatalf("expected transition details")
	}
}

func TestWriteErrorHidesInternalText(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, errors.New("dial tcp 10.0.0.5:5432: refused"))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if body := decodeError(t, w); body.Message != "internal server error" {
		t.Fatalf("internal text leaked: %q", body.Message)
	}
}

func TestWriteErrorDropsDetailsForForbidden(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeForbidden, "staff cannot cancel a delivered order").
		WithDetails(map[string]string{"role": "STAFF"})
	WriteError(context.Background(), logger.Nop(), w, err)

	body := decodeError(t, w)
	if w.Code != http.StatusForbidden || body.Details != nil {
		t.Fatalf("unexpected response %d %+v", w.Code, body)
	}
}
