package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"careline-agent/internal/usecase"
)

type mockOrchestrator struct {
	processErr error
	paymentErr error
	resetErr   error

	processedIdentity string
	processedText     string
	paymentIdentity   string
	resetIdentity     string
}

func (m *mockOrchestrator) ProcessMessage(_ context.Context, identity, text string) error {
	m.processedIdentity = identity
	m.processedText = text
	return m.processErr
}

func (m *mockOrchestrator) ConfirmPayment(_ context.Context, identity string) error {
	m.paymentIdentity = identity
	return m.paymentErr
}

func (m *mockOrchestrator) Reset(_ context.Context, identity string) error {
	m.resetIdentity = identity
	return m.resetErr
}

func newTestServer(t *testing.T, orch Orchestrator) *httptest.Server {
	t.Helper()
	h, err := New(orch, "secret-token")
	require.NoError(t, err)
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Body.Close() })
	return res
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, "token")
	require.Error(t, err)

	_, err = New(&mockOrchestrator{}, "  ")
	require.Error(t, err)
}

func TestHealthzNeedsNoAuth(t *testing.T) {
	srv := newTestServer(t, &mockOrchestrator{})

	res, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer func() { _ = res.Body.Close() }()
	require.Equal(t, http.StatusOK, res.StatusCode)
}

func TestWebhookMessageRejectsBadToken(t *testing.T) {
	orch := &mockOrchestrator{}
	srv := newTestServer(t, orch)

	res := post(t, srv.URL+"/webhook/message", "", `{"identity":"id-1","text":"oi"}`)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res = post(t, srv.URL+"/webhook/message", "wrong", `{"identity":"id-1","text":"oi"}`)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)

	require.Empty(t, orch.processedIdentity, "orchestrator must not run without auth")
}

func TestWebhookMessageOK(t *testing.T) {
	orch := &mockOrchestrator{}
	srv := newTestServer(t, orch)

	res := post(t, srv.URL+"/webhook/message", "secret-token", `{"identity":"id-1","text":"oi"}`)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "id-1", orch.processedIdentity)
	require.Equal(t, "oi", orch.processedText)
}

func TestWebhookMessageBadJSON(t *testing.T) {
	srv := newTestServer(t, &mockOrchestrator{})

	res := post(t, srv.URL+"/webhook/message", "secret-token", `{"identity":`)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestWebhookMessageErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid input", &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "empty"}, http.StatusBadRequest},
		{"upstream", &usecase.Error{Code: usecase.ErrorUpstream, Reason: "llm"}, http.StatusBadGateway},
		{"store", &usecase.Error{Code: usecase.ErrorStore, Reason: "dynamo"}, http.StatusInternalServerError},
		{"internal", &usecase.Error{Code: usecase.ErrorInternal, Reason: "panic"}, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(t, &mockOrchestrator{processErr: tc.err})
			res := post(t, srv.URL+"/webhook/message", "secret-token", `{"identity":"id-1","text":"oi"}`)
			require.Equal(t, tc.want, res.StatusCode)
		})
	}
}

func TestWebhookPayment(t *testing.T) {
	orch := &mockOrchestrator{}
	srv := newTestServer(t, orch)

	res := post(t, srv.URL+"/webhook/payment", "secret-token", `{"identity":"id-1"}`)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "id-1", orch.paymentIdentity)
}

func TestReset(t *testing.T) {
	orch := &mockOrchestrator{}
	srv := newTestServer(t, orch)

	res := post(t, srv.URL+"/reset", "secret-token", `{"identity":"id-1"}`)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "id-1", orch.resetIdentity)
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, &mockOrchestrator{})

	res, err := http.Get(srv.URL + "/webhook/message")
	require.NoError(t, err)
	defer func() { _ = res.Body.Close() }()
	require.Equal(t, http.StatusMethodNotAllowed, res.StatusCode)
}
