package webhooks

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/dormship-backend/pkg/logger"
	"github.com/angelmondragon/dormship-backend/pkg/payos"
)

type stubReconciler struct {
	got     *payos.Webhook
	outcome string
	err     error
}

func (s *stubReconciler) HandleWebhook(_ context.Context, webhook payos.Webhook) (string, error) {
	s.got = &webhook
	return s.outcome, s.err
}

const successBody = `{"data":{"success":true}}`

func TestPayOSForwardsWebhook(t *testing.T) {
	svc := &stubReconciler{outcome: "applied"}
	body := `{"code":"00","desc":"success","success":true,"data":{"orderCode":123,"amount":50000},"signature":"abc"}`
	rec := httptest.NewRecorder()

	PayOS(svc, logger.Nop()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhooks/payos", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, successBody, rec.Body.String())
	require.NotNil(t, svc.got)
	require.Equal(t, "abc", svc.got.Signature)
	require.JSONEq(t, `{"orderCode":123,"amount":50000}`, string(svc.got.Data))
}

func TestPayOSAcknowledgesFailures(t *testing.T) {
	svc := &stubReconciler{outcome: "invalid_signature", err: errors.New("signature mismatch")}
	var logs bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.DebugLevel, Output: &logs, Format: "json"})
	rec := httptest.NewRecorder()

	PayOS(svc, logg).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhooks/payos", strings.NewReader(`{"data":{},"signature":"x"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, successBody, rec.Body.String())
	require.Empty(t, logs.String(), "the reconciler already logged the drop")
}

func TestPayOSAcknowledgesGarbage(t *testing.T) {
	svc := &stubReconciler{}
	rec := httptest.NewRecorder()

	PayOS(svc, logger.Nop()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhooks/payos", strings.NewReader(`not json`)))

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, successBody, rec.Body.String())
	require.Nil(t, svc.got)
}
