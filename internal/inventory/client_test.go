package inventory

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewClient(Config{
		BaseURL:   srv.URL,
		ClientKey: "key-1",
		Timeout:   200 * time.Millisecond,
		Logger:    logger,
	})
}

func TestClientCheckStock(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   int
	}{
		{name: "available field", status: http.StatusOK, body: `{"available": 42}`, want: 42},
		{name: "supplier envelope", status: http.StatusOK, body: `{"code": 0, "data": 7}`, want: 7},
		{name: "non-zero code", status: http.StatusOK, body: `{"code": 1, "message": "bad key"}`, want: 0},
		{name: "success false", status: http.StatusOK, body: `{"success": false, "available": 9}`, want: 0},
		{name: "server error", status: http.StatusInternalServerError, body: `{"available": 9}`, want: 0},
		{name: "malformed", status: http.StatusOK, body: `{"available": `, want: 0},
		{name: "non numeric", status: http.StatusOK, body: `{"available": "lots"}`, want: 0},
		{name: "negative", status: http.StatusOK, body: `{"available": -3}`, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, DefaultStockPath, r.URL.Path)
				assert.Equal(t, "outlook", r.URL.Query().Get("type"))
				assert.Equal(t, "key-1", r.URL.Query().Get("clientKey"))
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			assert.Equal(t, tt.want, client.CheckStock(context.Background(), "outlook"))
		})
	}
}

func TestClientCheckStockUnreachable(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	client := NewClient(Config{BaseURL: "http://127.0.0.1:1", Timeout: 100 * time.Millisecond, Logger: logger})
	assert.Equal(t, 0, client.CheckStock(context.Background(), "outlook"))
}

func TestClientAllocate(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultAllocatePath, r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("qty"))
		_, _ = w.Write([]byte(`{"items": ["a@x.com:p1", "b@x.com:p2"]}`))
	})

	tokens, err := client.Allocate(context.Background(), "outlook", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a@x.com:p1", "b@x.com:p2"}, tokens)
}

func TestClientAllocateSupplierEnvelope(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code": 0, "data": ["a", "b", "c"]}`))
	})

	tokens, err := client.Allocate(context.Background(), "hotmail", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tokens)
}

func TestClientAllocateFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "short delivery", status: http.StatusOK, body: `{"items": ["only-one"]}`},
		{name: "blank tokens do not count", status: http.StatusOK, body: `{"items": ["one", " "]}`},
		{name: "error status", status: http.StatusBadGateway, body: `{"items": ["a", "b"]}`},
		{name: "error code", status: http.StatusOK, body: `{"code": 3, "message": "out of stock"}`},
		{name: "no list", status: http.StatusOK, body: `{"items": "a,b"}`},
		{name: "malformed", status: http.StatusOK, body: `not json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			tokens, err := client.Allocate(context.Background(), "outlook", 2)
			assert.ErrorIs(t, err, ErrAllocationFailed)
			assert.Nil(t, tokens)
		})
	}
}

func TestClientAllocateTimeout(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})

	_, err := client.Allocate(context.Background(), "outlook", 1)
	assert.ErrorIs(t, err, ErrAllocationFailed)
}

func TestFakeAllocate(t *testing.T) {
	fake := NewFake(map[string]int{"a": 3})

	tokens, err := fake.Allocate(context.Background(), "a", 2)
	require.NoError(t, err)
	assert.Len(t, tokens, 2)
	assert.Equal(t, 1, fake.CheckStock(context.Background(), "a"))

	_, err = fake.Allocate(context.Background(), "a", 2)
	assert.ErrorIs(t, err, ErrAllocationFailed)
	assert.Equal(t, 2, fake.AllocateCalls())
}
