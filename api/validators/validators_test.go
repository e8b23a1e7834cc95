package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/dormship-backend/pkg/errors"
)

type cancelBody struct {
	Reason      string `json:"reason" validate:"required"`
	EvidenceURL string `json:"evidenceUrl" validate:"required,url"`
	ReasonType  string `json:"reasonType" validate:"required,oneof=STUDENT_FAULT STAFF_FAULT EXTERNAL"`
}

type parcelBody struct {
	Weight decimal.Decimal `json:"weight" validate:"gt=0"`
}

type amountBody struct {
	Amount *int64 `json:"amount" validate:"omitempty,gt=0"`
}

func post(body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
}

func details(t *testing.T, err error) map[string]string {
	t.Helper()
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	out, ok := pkgerrors.As(err).Details().(map[string]string)
	require.True(t, ok)
	return out
}

func TestDecodeJSONBodyReportsFieldsByJSONName(t *testing.T) {
	var body cancelBody
	got := details(t, DecodeJSONBody(post(`{"reason":"","evidenceUrl":"nope","reasonType":"OTHER"}`), &body))

	require.Equal(t, "is required", got["reason"])
	require.Equal(t, "must be a valid url", got["evidenceUrl"])
	require.Equal(t, "must be one of STUDENT_FAULT STAFF_FAULT EXTERNAL", got["reasonType"])
}

func TestDecodeJSONBodyRejectsUnknownAndTrailingData(t *testing.T) {
	var body cancelBody
	require.True(t, pkgerrors.IsCode(DecodeJSONBody(post(`{"reason":"x","extra":1}`), &body), pkgerrors.CodeValidation))

	var parcel parcelBody
	require.True(t, pkgerrors.IsCode(DecodeJSONBody(post(`{"weight":"1"} {"weight":"2"}`), &parcel), pkgerrors.CodeValidation))
}

func TestDecodeJSONBodyComparesDecimals(t *testing.T) {
	var parcel parcelBody
	require.NoError(t, DecodeJSONBody(post(`{"weight":"0.4"}`), &parcel))
	require.True(t, parcel.Weight.Equal(decimal.RequireFromString("0.4")))

	got := details(t, DecodeJSONBody(post(`{"weight":"0"}`), &parcel))
	require.Equal(t, "must be greater than 0", got["weight"])
}

func TestDecodeOptionalJSONBody(t *testing.T) {
	var body amountBody
	require.NoError(t, DecodeOptionalJSONBody(httptest.NewRequest(http.MethodPost, "/", nil), &body))
	require.NoError(t, DecodeOptionalJSONBody(post(""), &body))
	require.Nil(t, body.Amount)

	require.NoError(t, DecodeOptionalJSONBody(post(`{"amount":20000}`), &body))
	require.Equal(t, int64(20000), *body.Amount)

	got := details(t, DecodeOptionalJSONBody(post(`{"amount":-5}`), &amountBody{}))
	require.Equal(t, "must be greater than 0", got["amount"])
}

func TestParseUUIDParam(t *testing.T) {
	id := uuid.New()
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("orderId", id.String())
	rctx.URLParams.Add("deliveryId", "DL-1")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	got, err := ParseUUIDParam(req, "orderId")
	require.NoError(t, err)
	require.Equal(t, id, got)

	_, err = ParseUUIDParam(req, "deliveryId")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = ParseUUIDParam(req, "studentId")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestParseQueryHelpers(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=500&date=2026-10-15&bad=15/10&word=ten", nil)

	_, err := ParseQueryInt(req, "limit", 25, 1, 100)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = ParseQueryInt(req, "word", 25, 1, 100)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	limit, err := ParseQueryInt(req, "missing", 25, 1, 100)
	require.NoError(t, err)
	require.Equal(t, 25, limit)

	date, err := ParseQueryDate(req, "date")
	require.NoError(t, err)
	require.Equal(t, 15, date.Day())

	_, err = ParseQueryDate(req, "bad")
	require.Error(t, err)
}

func TestSanitizeString(t *testing.T) {
	require.Equal(t, "Ký túc xá B", SanitizeString("  Ký\ttúc \n xá\x00 B ", 0))
	require.Equal(t, "Ký túc", SanitizeString("Ký túc xá", 6))
	require.Equal(t, "SPX123", SanitizeString(" SPX123 ", 64))
}
