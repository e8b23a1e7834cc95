// Package payos signs and verifies payloads exchanged with the PayOS bank
// transfer gateway.
package payos

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var (
	ErrChecksumKeyRequired = errors.New("payos checksum key is required")
	ErrInvalidSignature    = errors.New("payos signature mismatch")
	ErrMissingData         = errors.New("payos webhook data is missing")
)

// Sign returns the hex HMAC-SHA256 of data rendered as key=value pairs sorted
// by key and joined with '&'. Nil values render as empty strings; arrays and
// objects render as compact JSON.
func Sign(data map[string]any, key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", ErrChecksumKeyRequired
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		value, err := formatValue(data[k])
		if err != nil {
			return "", fmt.Errorf("format %s: %w", k, err)
		}
		pairs = append(pairs, k+"="+value)
	}
	return hmacHex(strings.Join(pairs, "&"), key), nil
}

// Verify reports whether signature matches data under key.
func Verify(data map[string]any, signature, key string) error {
	expected, err := Sign(data, key)
	if err != nil {
		return err
	}
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature)))) {
		return ErrInvalidSignature
	}
	return nil
}

// PaymentRequest is the checkout payload handed to the client for a bank
// transfer.
type PaymentRequest struct {
	OrderCode   int64  `json:"orderCode"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	ReturnURL   string `json:"returnUrl"`
	CancelURL   string `json:"cancelUrl"`
	Signature   string `json:"signature"`
}

// SignPaymentRequest signs the fixed field set the gateway checks on
// payment link creation.
func SignPaymentRequest(req PaymentRequest, key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", ErrChecksumKeyRequired
	}
	raw := fmt.Sprintf("amount=%d&cancelUrl=%s&description=%s&orderCode=%d&returnUrl=%s",
		req.Amount, req.CancelURL, req.Description, req.OrderCode, req.ReturnURL)
	return hmacHex(raw, key), nil
}

// Webhook is the envelope the gateway posts on every transfer.
type Webhook struct {
	Code      string          `json:"code"`
	Desc      string          `json:"desc"`
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Signature string          `json:"signature"`
}

// WebhookData carries the transfer being reported.
type WebhookData struct {
	OrderCode              int64   `json:"orderCode"`
	Amount                 int64   `json:"amount"`
	Description            string  `json:"description"`
	AccountNumber          string  `json:"accountNumber"`
	Reference              string  `json:"reference"`
	TransactionDateTime    string  `json:"transactionDateTime"`
	Currency               string  `json:"currency"`
	PaymentLinkID          string  `json:"paymentLinkId"`
	Code                   string  `json:"code"`
	Desc                   string  `json:"desc"`
	CounterAccountBankID   *string `json:"counterAccountBankId"`
	CounterAccountBankName *string `json:"counterAccountBankName"`
	CounterAccountName     *string `json:"counterAccountName"`
	CounterAccountNumber   *string `json:"counterAccountNumber"`
	VirtualAccountName     *string `json:"virtualAccountName"`
	VirtualAccountNumber   *string `json:"virtualAccountNumber"`
}

// VerifyWebhook checks the envelope signature over the raw data object and
// decodes it.
func VerifyWebhook(w Webhook, key string) (*WebhookData, error) {
	if len(bytes.TrimSpace(w.Data)) == 0 || bytes.Equal(bytes.TrimSpace(w.Data), []byte("null")) {
		return nil, ErrMissingData
	}
	dec := json.NewDecoder(bytes.NewReader(w.Data))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("decode webhook data: %w", err)
	}
	if err := Verify(fields, w.Signature, key); err != nil {
		return nil, err
	}
	var data WebhookData
	if err := json.Unmarshal(w.Data, &data); err != nil {
		return nil, fmt.Errorf("decode webhook data: %w", err)
	}
	return &data, nil
}

func formatValue(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		if val == "null" || val == "undefined" {
			return "", nil
		}
		return val, nil
	case json.Number:
		return val.String(), nil
	case bool:
		return strconv.FormatBool(val), nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case []any, map[string]any:
		raw, err := json.Marshal(val)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	default:
		return fmt.Sprint(val), nil
	}
}

func hmacHex(message, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}
