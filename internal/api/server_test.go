package api

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ggonzalez94/defi-intents/internal/confirm"
	clierr "github.com/ggonzalez94/defi-intents/internal/errors"
	"github.com/ggonzalez94/defi-intents/internal/execution"
	"github.com/ggonzalez94/defi-intents/internal/intent"
	"github.com/ggonzalez94/defi-intents/internal/model"
	"github.com/ggonzalez94/defi-intents/internal/preview"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeConversation struct {
	lastUser   string
	lastIntent intent.Intent
	pending    bool
	confirmErr error
}

func (f *fakeConversation) OnIntent(_ context.Context, userID string, in intent.Intent) (confirm.Reply, error) {
	f.lastUser = userID
	f.lastIntent = in
	if in.Kind == intent.KindPositionLeverage {
		return confirm.Reply{State: confirm.StateRejected, Message: "Invalid request"},
			clierr.InvalidField("leverage", "75 is outside the allowed range [1.1, 50]")
	}
	p := preview.Preview{ID: "pv_1", Kind: in.Kind, Summary: "summary", Warnings: []string{"rounded"}}
	return confirm.Reply{State: confirm.StatePreviewed, Message: p.Summary, Preview: &p}, nil
}

func (f *fakeConversation) OnText(_ context.Context, _ string, text string) (confirm.Reply, error) {
	return confirm.Reply{State: confirm.StateRejected, Message: "rephrase"}, clierr.New(clierr.CodeAmbiguous, "unclear: "+text)
}

func (f *fakeConversation) OnConfirm(context.Context, string) (confirm.Reply, error) {
	if f.confirmErr != nil {
		return confirm.Reply{State: confirm.StateNothingPending, Message: "Transaction expired."}, f.confirmErr
	}
	res := execution.Result{ExecutionID: "exec_1", Status: execution.StatusSuccess}
	return confirm.Reply{State: confirm.StateConfirmed, Message: "Transaction sent.", Result: &res}, nil
}

func (f *fakeConversation) OnCancel(context.Context, string) (confirm.Reply, error) {
	return confirm.Reply{State: confirm.StateCancelled, Message: "Cancelled."}, nil
}

func (f *fakeConversation) Pending(context.Context, string) (intent.Kind, bool, error) {
	if !f.pending {
		return "", false, nil
	}
	return intent.KindTransfer, true, nil
}

type fakeHistory struct{}

func (fakeHistory) List(_ context.Context, userID string, limit int) ([]execution.Record, error) {
	return []execution.Record{{ExecutionID: "exec_1", UserID: userID}}, nil
}

func newTestServer(t *testing.T, conv *fakeConversation, rateLimit int) *Server {
	t.Helper()
	srv, err := New(Config{Conversation: conv, History: fakeHistory{}, RateLimitPerIP: rateLimit, Logger: zerolog.Nop()})
	require.NoError(t, err)
	return srv
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, model.Envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var env model.Envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestIntentPreview(t *testing.T) {
	conv := &fakeConversation{}
	h := newTestServer(t, conv, 0).Handler()

	rec, env := do(t, h, http.MethodPost, "/v1/users/alice/intents", `{"kind":"transfer","params":{"amount":12.5}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, env.Success)
	require.Equal(t, []string{"rounded"}, env.Warnings)
	require.Equal(t, "alice", env.Meta.UserID)
	require.Equal(t, "alice", conv.lastUser)
	require.Equal(t, intent.KindTransfer, conv.lastIntent.Kind)

	amount, err := conv.lastIntent.Decimal("amount")
	require.NoError(t, err)
	require.Equal(t, "12.5", amount)
}

func TestIntentValidationError(t *testing.T) {
	h := newTestServer(t, &fakeConversation{}, 0).Handler()
	rec, env := do(t, h, http.MethodPost, "/v1/users/alice/intents", `{"kind":"position_leverage","params":{"leverage":75}}`)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.False(t, env.Success)
	require.NotNil(t, env.Error)
	require.Equal(t, "leverage", env.Error.Field)
	require.Equal(t, int(clierr.CodeInvalidIntent), env.Error.Code)
	require.Contains(t, env.Error.Message, "[1.1, 50]")
}

func TestIntentBadBody(t *testing.T) {
	h := newTestServer(t, &fakeConversation{}, 0).Handler()
	rec, env := do(t, h, http.MethodPost, "/v1/users/alice/intents", `not json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, int(clierr.CodeUsage), env.Error.Code)

	rec, _ = do(t, h, http.MethodPost, "/v1/users/alice/intents", `{"params":{}}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestConfirmNothingPendingIsOK(t *testing.T) {
	conv := &fakeConversation{confirmErr: clierr.New(clierr.CodeNothingPending, "no pending action")}
	h := newTestServer(t, conv, 0).Handler()
	rec, env := do(t, h, http.MethodPost, "/v1/users/alice/confirm", "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, env.Success)
	data := env.Data.(map[string]any)
	require.Equal(t, false, data["pending"])
	require.Contains(t, data["message"], "Transaction expired")
}

func TestConfirmSuccess(t *testing.T) {
	h := newTestServer(t, &fakeConversation{}, 0).Handler()
	rec, env := do(t, h, http.MethodPost, "/v1/users/alice/confirm", "")
	require.Equal(t, http.StatusOK, rec.Code)
	data := env.Data.(map[string]any)
	require.Equal(t, "confirmed", data["state"])
}

func TestConfirmPartialFailureKeepsReply(t *testing.T) {
	conv := &fakeConversation{confirmErr: clierr.New(clierr.CodePartialFailure, "partial failure after 1 broadcast transaction(s)")}
	h := newTestServer(t, conv, 0).Handler()
	rec, env := do(t, h, http.MethodPost, "/v1/users/alice/confirm", "")
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.False(t, env.Success)
	require.NotNil(t, env.Data)
	require.Equal(t, "partial_failure", env.Error.Type)
}

func TestTextAmbiguous(t *testing.T) {
	h := newTestServer(t, &fakeConversation{}, 0).Handler()
	rec, env := do(t, h, http.MethodPost, "/v1/users/alice/text", `{"text":"do something"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, int(clierr.CodeAmbiguous), env.Error.Code)
}

func TestPendingAndHistory(t *testing.T) {
	h := newTestServer(t, &fakeConversation{pending: true}, 0).Handler()
	rec, env := do(t, h, http.MethodGet, "/v1/users/alice/pending", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "transfer", env.Data.(map[string]any)["kind"])

	rec, env = do(t, h, http.MethodGet, "/v1/users/alice/history?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, env.Data.([]any), 1)

	rec, _ = do(t, h, http.MethodGet, "/v1/users/alice/history?limit=0", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestKindsAndBridgeStatusUnconfigured(t *testing.T) {
	h := newTestServer(t, &fakeConversation{}, 0).Handler()
	rec, env := do(t, h, http.MethodGet, "/v1/kinds", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, env.Data.([]any), 7)

	rec, _ = do(t, h, http.MethodGet, "/v1/bridge/status?tx=0xabc&from_chain=arbitrum&to_chain=base", "")
	require.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestRateLimit(t *testing.T) {
	h := newTestServer(t, &fakeConversation{}, 2).Handler()
	for i := 0; i < 2; i++ {
		rec, _ := do(t, h, http.MethodGet, "/v1/kinds", "")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec, env := do(t, h, http.MethodGet, "/v1/kinds", "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "60", rec.Header().Get("Retry-After"))
	require.Equal(t, int(clierr.CodeRateLimited), env.Error.Code)

	rec, _ = do(t, h, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(t, &fakeConversation{}, 0).Handler()
	do(t, h, http.MethodGet, "/v1/kinds", "")
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "intents_http_requests_total")
}

func TestStartShutdownNoGoroutineLeak(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	srv, err := New(Config{ListenAddr: addr, Conversation: &fakeConversation{}, Logger: zerolog.Nop()})
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}, Timeout: 2 * time.Second}
	require.Eventually(t, func() bool {
		resp, err := client.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Start did not return after Shutdown")
	}
}
