package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinhwansong/konnect-back-sub000/pkg/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, timeout time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.PaymentConfig{BaseURL: srv.URL + "/", SecretKey: "test_sk", Timeout: timeout})
}

func TestClientConfirmSuccess(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payments/confirm", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "test_sk", user)
		assert.Empty(t, pass)

		var req ConfirmRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "order-1", req.OrderID)
		assert.Equal(t, int64(30000), req.Amount)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"paymentKey":"pk","orderId":"order-1","status":"DONE","totalAmount":30000,"approvedAt":"2025-07-08T14:00:00+09:00","receipt":{"url":"https://receipt/1"}}`))
	}, time.Second)

	res, err := client.Confirm(context.Background(), ConfirmRequest{PaymentKey: "pk", OrderID: "order-1", Amount: 30000})
	require.NoError(t, err)
	assert.Equal(t, "https://receipt/1", res.ReceiptURL)
	assert.Equal(t, StatusDone, res.Status)
	assert.Equal(t, int64(30000), res.TotalAmount)
}

func TestClientConfirmProcessorError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":"INVALID_CARD","message":"card declined"}`))
	}, time.Second)

	_, err := client.Confirm(context.Background(), ConfirmRequest{PaymentKey: "pk", OrderID: "o", Amount: 1})
	var perr *ProcessorError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusBadRequest, perr.StatusCode)
	assert.Equal(t, "INVALID_CARD", perr.Code)
	assert.Equal(t, "card declined", perr.Message)
}

func TestClientConfirmNotApproved(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"paymentKey":"pk","orderId":"o","status":"ABORTED"}`))
	}, time.Second)

	_, err := client.Confirm(context.Background(), ConfirmRequest{PaymentKey: "pk", OrderID: "o", Amount: 1})
	var perr *ProcessorError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "NOT_APPROVED", perr.Code)
}

func TestClientConfirmTimeout(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}, 50*time.Millisecond)

	_, err := client.Confirm(context.Background(), ConfirmRequest{PaymentKey: "pk", OrderID: "o", Amount: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestClientCancel(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments/pk-1/cancel", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "changed plans", body["cancelReason"])
		_, _ = w.Write([]byte(`{"paymentKey":"pk-1","status":"CANCELED"}`))
	}, time.Second)

	res, err := client.Cancel(context.Background(), "pk-1", "changed plans")
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, res.Status)
}

func TestClientCancelRequiresKey(t *testing.T) {
	client := NewClient(config.PaymentConfig{BaseURL: "http://127.0.0.1:1"})
	_, err := client.Cancel(context.Background(), "", "x")
	assert.Error(t, err)
}
