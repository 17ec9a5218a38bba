package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/rudironsoni/Synaxis-sub005/middleware"
	"github.com/rudironsoni/Synaxis-sub005/services/orchestrator"
	"github.com/rudironsoni/Synaxis-sub005/utils"
)

// Router routes one chat completion through model resolution, admission and
// the provider failover walk.
type Router interface {
	Route(ctx context.Context, rr *orchestrator.RouteRequest) (*orchestrator.RouteResult, error)
	RouteStream(ctx context.Context, rr *orchestrator.RouteRequest) (*orchestrator.RouteResult, error)
	FinishStream(result *orchestrator.RouteResult)
}

// ChatHandler serves the OpenAI-compatible chat completion surface.
type ChatHandler struct {
	router Router
	logger *zap.Logger
}

// NewChatHandler creates a new ChatHandler
func NewChatHandler(router Router, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		router: router,
		logger: logger,
	}
}

// HandleChatCompletion handles POST /v1/chat/completions
func (h *ChatHandler) HandleChatCompletion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := chimiddleware.GetReqID(ctx)

	tenant := middleware.GetTenantFromContext(ctx)
	if tenant == nil {
		h.logger.Error("missing tenant in context", zap.String("request_id", requestID))
		_ = utils.WriteOpenAIError(w, http.StatusUnauthorized, "invalid_request_error",
			"invalid_api_key", "Missing tenant credentials.")
		return
	}

	var chatReq openai.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&chatReq); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteOpenAIError(w, http.StatusBadRequest, "invalid_request_error",
			"invalid_request_body", "Request body is not valid JSON.")
		return
	}

	// Only the model field is validated at this boundary. Every other field
	// passes through untouched: the providers own the judgement on their own
	// parameter ranges, and their rejections surface through the aggregate
	// failure path.
	rr := &orchestrator.RouteRequest{
		Tenant:    tenant,
		Request:   &chatReq,
		RequestID: requestID,
		IPAddress: getClientIP(r),
		UserAgent: r.UserAgent(),
	}

	w.Header().Set(utils.HeaderModelRequested, chatReq.Model)

	if chatReq.Stream {
		h.streamCompletion(w, r, rr)
		return
	}

	result, err := h.router.Route(ctx, rr)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	w.Header().Set(utils.HeaderModelResolved, result.ModelResolved)
	w.Header().Set(utils.HeaderProvider, result.Provider)
	utils.SetRateLimitHeaders(w, result.RateLimit.Limit, result.RateLimit.Remaining, result.RateLimit.ResetSeconds)

	h.logger.Info("chat completion successful",
		zap.String("request_id", result.RequestID),
		zap.String("provider", result.Provider),
		zap.String("model", result.ModelResolved),
		zap.Int("attempts", result.Attempts),
		zap.Int("total_tokens", result.Usage.TotalTokens),
		zap.Int("latency_ms", result.LatencyMs))

	// The payload is the upstream response verbatim, not the gateway's
	// data envelope: OpenAI SDKs parse the body as a chat completion.
	if err := utils.WriteJSON(w, http.StatusOK, result.Response); err != nil {
		h.logger.Error("failed to write response",
			zap.String("request_id", requestID),
			zap.Error(err))
	}
}

// streamCompletion relays provider SSE chunks to the client verbatim.
// Routing, admission and failover all complete before the first byte is
// flushed, so a candidate failure can still fall over to the next provider
// with the status line uncommitted.
func (h *ChatHandler) streamCompletion(w http.ResponseWriter, r *http.Request, rr *orchestrator.RouteRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("response writer does not support streaming",
			zap.String("request_id", rr.RequestID))
		_ = utils.WriteOpenAIError(w, http.StatusInternalServerError, "server_error",
			"streaming_unsupported", "Streaming is not supported by this server.")
		return
	}

	result, err := h.router.RouteStream(r.Context(), rr)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	defer result.Stream.Close()

	w.Header().Set(utils.HeaderModelResolved, result.ModelResolved)
	w.Header().Set(utils.HeaderProvider, result.Provider)
	utils.SetRateLimitHeaders(w, result.RateLimit.Limit, result.RateLimit.Remaining, result.RateLimit.ResetSeconds)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var relayErr error
	for {
		payload, err := result.Stream.RecvRaw()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			relayErr = err
			break
		}
		if _, werr := fmt.Fprintf(w, "data: %s\n\n", payload); werr != nil {
			relayErr = werr
			break
		}
		flusher.Flush()
	}

	if relayErr != nil {
		// The 200 is already committed. Stop without the [DONE] marker so
		// the client can tell truncation from completion.
		h.logger.Warn("stream relay interrupted",
			zap.String("request_id", result.RequestID),
			zap.String("provider", result.Provider),
			zap.Error(relayErr))
	} else {
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}

	h.router.FinishStream(result)
}

// getClientIP extracts the client IP address from the request
func getClientIP(r *http.Request) string {
	// Try X-Forwarded-For first (for proxied requests)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}

	// Try X-Real-IP
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	// Fall back to RemoteAddr
	return r.RemoteAddr
}
