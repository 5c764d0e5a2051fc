package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/zhengjr9/chatgpt-agent/internal/chatgpt"
	apierrors "github.com/zhengjr9/chatgpt-agent/internal/errors"
	"github.com/zhengjr9/chatgpt-agent/internal/httputil"
)

// Handler serves one caller dialect by relaying to the chat-completion service.
type Handler struct {
	adapter     Adapter
	client      *chatgpt.Client
	defaultUser string
	timeout     time.Duration
	logger      *slog.Logger
}

// NewHandler constructs a Handler. The client's API key is used when the
// caller supplies none.
func NewHandler(a Adapter, client *chatgpt.Client, defaultUser string, timeout time.Duration) *Handler {
	return &Handler{
		adapter:     a,
		client:      client,
		defaultUser: defaultUser,
		timeout:     timeout,
		logger:      slog.Default().With("dialect", a.Name()),
	}
}

// ServeHTTP streams when the request body asks for it.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, false)
}

// Streaming returns a handler that always streams, for routes where the path
// selects streaming.
func (h *Handler) Streaming() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.serve(w, r, true)
	})
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, forceStream bool) {
	creds := httputil.ExtractCredentials(r, h.client.Endpoint().APIKey, h.defaultUser)
	if creds.APIKey == "" {
		apierrors.WriteJSONError(w, http.StatusUnauthorized, apierrors.ErrMissingAPIKey.Error()+": provide X-Upstream-Api-Key header or Authorization: Bearer <key>")
		return
	}

	req, err := h.adapter.ParseRequest(r)
	if err != nil {
		apierrors.WriteJSONError(w, http.StatusBadRequest, fmt.Sprintf("%s: %s", apierrors.ErrMalformedBody, err))
		return
	}
	if forceStream {
		req.Stream = true
	}
	if req.Options.Model == "" {
		req.Options.Model = h.client.DefaultModel()
	}
	if req.Options.User == nil && creds.User != "" {
		req.Options.User = chatgpt.String(creds.User)
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	client := h.client.WithAPIKey(creds.APIKey)
	logger := h.logger.With("model", req.Options.Model.String(), "stream", req.Stream)

	if req.Stream {
		stream, err := client.Stream(ctx, req.History, req.Options)
		if err != nil {
			logger.Warn("upstream request failed", "error", err)
			apierrors.WriteUpstreamError(w, err)
			return
		}
		defer stream.Close()

		httputil.SetSSEHeaders(w)
		if err := h.adapter.WriteStreamingResponse(w, req, stream.Text()); err != nil {
			logger.Warn("stream ended early", "error", err)
		}
		return
	}

	result, err := client.Complete(ctx, req.History, req.Options)
	if err != nil {
		logger.Warn("upstream request failed", "error", err)
		apierrors.WriteUpstreamError(w, err)
		return
	}
	if err := h.adapter.WriteBlockingResponse(w, req, result); err != nil {
		apierrors.WriteJSONError(w, http.StatusInternalServerError, "failed to write response")
	}
}
