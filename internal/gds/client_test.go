package gds

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/skyfare/ticketing/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("galileo", config.VendorConfig{
		BaseURL:        srv.URL,
		Username:       "user",
		Password:       "pass",
		TimeoutSeconds: 2,
	}, zap.NewNop())
}

func TestPost_ReturnsBodyOnSuccess(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "user", user)
		assert.Equal(t, "pass", pass)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Write([]byte(`{"ok":true}`))
	})

	body, terr := client.Post(context.Background(), "/air/book", map[string]string{"k": "v"})

	require.Nil(t, terr)
	assert.JSONEq(t, `{"ok":true}`, string(body))
}

func TestPost_ClassifiesStatusCodes(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		kind    ErrorKind
		unknown bool
	}{
		{"unauthorized", http.StatusUnauthorized, ErrorKindAuth, false},
		{"forbidden", http.StatusForbidden, ErrorKindAuth, false},
		{"rate limited", http.StatusTooManyRequests, ErrorKindRateLimit, false},
		{"server error", http.StatusBadGateway, ErrorKindTransient, false},
		{"bad request", http.StatusBadRequest, ErrorKindBusiness, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			})

			_, terr := client.Post(context.Background(), "/air/book", nil)

			require.NotNil(t, terr)
			assert.Equal(t, tc.kind, terr.Kind)
			assert.Equal(t, tc.status, terr.StatusCode)
			// An HTTP status is a definitive answer from the vendor.
			assert.False(t, terr.OutcomeUnknown)
		})
	}
}

func TestPost_TimeoutMarksOutcomeUnknown(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(3 * time.Second)
	})

	_, terr := client.Post(context.Background(), "/air/ticket", nil)

	require.NotNil(t, terr)
	assert.Equal(t, ErrorKindTransient, terr.Kind)
	assert.True(t, terr.OutcomeUnknown, "a timed-out request may still have been processed")
}

func TestPost_OpenBreakerIsNotOutcomeUnknown(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	// 5xx responses do not trip the breaker (they return a classified
	// error, not a Go error), so force it open with failing dials.
	client.baseURL = "http://127.0.0.1:1"
	for i := 0; i < 5; i++ {
		_, terr := client.Post(context.Background(), "/air/book", nil)
		require.NotNil(t, terr)
	}

	_, terr := client.Post(context.Background(), "/air/book", nil)
	require.NotNil(t, terr)
	assert.Equal(t, ErrorKindTransient, terr.Kind)
	// The breaker rejected the call locally: nothing reached the vendor.
	assert.False(t, terr.OutcomeUnknown)
}

func TestPost_ExtractsVendorFaultMessage(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"fault":{"code":"1502","message":"fare no longer available"}}`))
	})

	_, terr := client.Post(context.Background(), "/air/book", nil)

	require.NotNil(t, terr)
	assert.Equal(t, ErrorKindBusiness, terr.Kind)
	assert.Equal(t, "fare no longer available", terr.VendorMessage)
}

func TestPost_CanceledContext(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, terr := client.Post(ctx, "/air/book", nil)

	require.NotNil(t, terr)
	assert.Equal(t, ErrorKindTransient, terr.Kind)
}
