package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ggonzalez94/defi-intents/internal/confirm"
	clierr "github.com/ggonzalez94/defi-intents/internal/errors"
	"github.com/ggonzalez94/defi-intents/internal/id"
	"github.com/ggonzalez94/defi-intents/internal/intent"
	"github.com/ggonzalez94/defi-intents/internal/model"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const maxBodyBytes = 64 << 10

var errRateLimited = clierr.New(clierr.CodeRateLimited, "too many requests, try again later")

type intentRequest struct {
	Kind   string         `json:"kind"`
	Params map[string]any `json:"params"`
}

type textRequest struct {
	Text string `json:"text"`
}

type pendingResponse struct {
	Pending bool        `json:"pending"`
	Kind    intent.Kind `json:"kind,omitempty"`
	Message string      `json:"message,omitempty"`
}

func (s *Server) handleKinds(w http.ResponseWriter, r *http.Request) {
	writeData(w, r, "", http.StatusOK, s.cfg.Registry.Entries(), nil)
}

func (s *Server) handleIntent(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var body intentRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, userID, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(body.Kind) == "" {
		writeError(w, r, userID, http.StatusUnprocessableEntity, clierr.InvalidField("kind", "is required"))
		return
	}
	reply, err := s.cfg.Conversation.OnIntent(r.Context(), userID, intent.New(intent.ParseKind(body.Kind), body.Params))
	s.writeReply(w, r, userID, reply, err)
}

func (s *Server) handleText(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var body textRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, userID, http.StatusBadRequest, err)
		return
	}
	reply, err := s.cfg.Conversation.OnText(r.Context(), userID, body.Text)
	s.writeReply(w, r, userID, reply, err)
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	reply, err := s.cfg.Conversation.OnConfirm(r.Context(), userID)
	s.writeReply(w, r, userID, reply, err)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	reply, err := s.cfg.Conversation.OnCancel(r.Context(), userID)
	s.writeReply(w, r, userID, reply, err)
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	kind, ok, err := s.cfg.Conversation.Pending(r.Context(), userID)
	if err != nil {
		writeError(w, r, userID, statusFor(err), err)
		return
	}
	writeData(w, r, userID, http.StatusOK, pendingResponse{Pending: ok, Kind: kind}, nil)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if s.cfg.History == nil {
		writeError(w, r, userID, http.StatusNotImplemented, clierr.New(clierr.CodeUnsupported, "execution journal is not configured"))
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, r, userID, http.StatusBadRequest, clierr.New(clierr.CodeUsage, "limit must be between 1 and 500"))
			return
		}
		limit = n
	}
	records, err := s.cfg.History.List(r.Context(), userID, limit)
	if err != nil {
		writeError(w, r, userID, http.StatusInternalServerError, clierr.Wrap(clierr.CodeInternal, "list executions", err))
		return
	}
	writeData(w, r, userID, http.StatusOK, records, nil)
}

func (s *Server) handleBridgeStatus(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Bridge == nil {
		writeError(w, r, "", http.StatusNotImplemented, clierr.New(clierr.CodeUnsupported, "no bridge provider is configured"))
		return
	}
	q := r.URL.Query()
	hash := strings.TrimSpace(q.Get("tx"))
	if hash == "" {
		writeError(w, r, "", http.StatusBadRequest, clierr.New(clierr.CodeUsage, "tx is required"))
		return
	}
	from, err := id.ParseChain(q.Get("from_chain"))
	if err != nil {
		writeError(w, r, "", http.StatusBadRequest, err)
		return
	}
	to, err := id.ParseChain(q.Get("to_chain"))
	if err != nil {
		writeError(w, r, "", http.StatusBadRequest, err)
		return
	}
	status, err := s.cfg.Bridge.BridgeStatus(r.Context(), hash, from.EVMChainID, to.EVMChainID)
	if err != nil {
		writeError(w, r, "", statusFor(err), err)
		return
	}
	writeData(w, r, "", http.StatusOK, status, nil)
}

// writeReply answers with the reply as data. Nothing pending is not an error
// for HTTP callers.
func (s *Server) writeReply(w http.ResponseWriter, r *http.Request, userID string, reply confirm.Reply, err error) {
	if err == nil {
		var warnings []string
		if reply.Preview != nil {
			warnings = reply.Preview.Warnings
		}
		writeData(w, r, userID, http.StatusOK, reply, warnings)
		return
	}
	if clierr.Is(err, clierr.CodeNothingPending) {
		writeData(w, r, userID, http.StatusOK, pendingResponse{Pending: false, Message: reply.Message}, nil)
		return
	}
	env := envelope(r, userID, reply)
	env.Success = false
	env.Error = errorBody(err)
	if reply.Message == "" {
		env.Data = nil
	}
	writeJSON(w, statusFor(err), env)
}

func writeData(w http.ResponseWriter, r *http.Request, userID string, status int, data any, warnings []string) {
	env := envelope(r, userID, data)
	env.Warnings = warnings
	writeJSON(w, status, env)
}

func writeError(w http.ResponseWriter, r *http.Request, userID string, status int, err error) {
	env := envelope(r, userID, nil)
	env.Success = false
	env.Error = errorBody(err)
	writeJSON(w, status, env)
}

func envelope(r *http.Request, userID string, data any) model.Envelope {
	requestID := middleware.GetReqID(r.Context())
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return model.Envelope{
		Version: model.EnvelopeVersion,
		Success: true,
		Data:    data,
		Meta: model.EnvelopeMeta{
			RequestID: requestID,
			Timestamp: time.Now().UTC(),
			Command:   r.Method + " " + r.URL.Path,
			UserID:    userID,
		},
	}
}

func errorBody(err error) *model.ErrorBody {
	cErr, ok := clierr.As(err)
	if !ok {
		cErr = clierr.Wrap(clierr.CodeInternal, "internal error", err)
	}
	return &model.ErrorBody{
		Code:    int(cErr.Code),
		Type:    clierr.TypeName(cErr.Code),
		Message: cErr.Error(),
		Field:   cErr.Field,
	}
}

func statusFor(err error) int {
	cErr, ok := clierr.As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch cErr.Code {
	case clierr.CodeUsage:
		return http.StatusBadRequest
	case clierr.CodeInvalidIntent, clierr.CodeAmbiguous:
		return http.StatusUnprocessableEntity
	case clierr.CodeNoWallet:
		return http.StatusNotFound
	case clierr.CodeBlocked:
		return http.StatusForbidden
	case clierr.CodeUnsupported:
		return http.StatusNotImplemented
	case clierr.CodeRateLimited:
		return http.StatusTooManyRequests
	case clierr.CodeProvider, clierr.CodeUnavailable, clierr.CodeAuth, clierr.CodePartialFailure, clierr.CodeFailure:
		return http.StatusBadGateway
	case clierr.CodeTimeout:
		return http.StatusGatewayTimeout
	case clierr.CodeSigner:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(r *http.Request, dst any) error {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return clierr.Wrap(clierr.CodeUsage, "read request body", err)
	}
	if len(raw) > maxBodyBytes {
		return clierr.New(clierr.CodeUsage, "request body too large")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) || errors.Is(err, io.EOF) {
			return clierr.New(clierr.CodeUsage, "request body must be a JSON object")
		}
		return clierr.Wrap(clierr.CodeUsage, "decode request body", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
