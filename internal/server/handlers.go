package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"github.com/maauso/videogen/internal/job/id"
	"github.com/maauso/videogen/internal/provider"
	"github.com/maauso/videogen/internal/upstream"
)

const (
	// minKeyLength is the shortest string accepted as an API key.
	minKeyLength = 16
	// placeholderKey is the sample value shipped in env templates.
	placeholderKey = "your_veo3_api_key"
)

// Keys are the server-side API keys used when a caller sends no token.
type Keys struct {
	Veo3  string
	Sora2 string
}

// Handlers contains the HTTP handlers for the proxy.
type Handlers struct {
	upstream  upstream.Client
	keys      Keys
	validator *validator.Validate
	logger    *slog.Logger
	queries   singleflight.Group
	now       func() time.Time
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithClock overrides the clock used for fallback job ids.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handlers) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client upstream.Client, keys Keys, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		upstream:  client,
		keys:      keys,
		validator: validator.New(),
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Sora2Create handles POST /api/sora2/create requests.
func (h *Handlers) Sora2Create(w http.ResponseWriter, r *http.Request) {
	var req Sora2CreateRequest
	if !h.decode(w, r, &req) {
		return
	}

	apiKey := resolveKey(req.Token, h.keys.Sora2)
	if apiKey == "" {
		writeError(w, http.StatusUnauthorized, "sora2_api_key_missing")
		return
	}

	body := sora2UpstreamBody{
		Images:      req.Images,
		Model:       orDefault(req.Model, provider.Sora2ModelDefault),
		Orientation: orDefault(req.Orientation, provider.OrientationPortrait),
		Prompt:      req.Prompt,
		Size:        orDefault(req.Size, provider.SizeSmall),
		Duration:    req.Duration,
	}
	if body.Images == nil {
		body.Images = []string{}
	}
	if body.Duration == 0 {
		body.Duration = provider.Sora2DefaultDuration
	}

	data, err := h.upstream.Create(r.Context(), apiKey, body)
	if err != nil {
		var se *upstream.StatusError
		if errors.As(err, &se) {
			h.logger.Warn("sora2 create rejected upstream",
				slog.Int("status", se.Code),
				slog.String("request_id", RequestIDFromContext(r.Context())),
			)
			writeJSON(w, se.Code, ErrorResponse{Error: "create_failed", Detail: jsonOrNil(se.Body)})
			return
		}
		h.unexpected(w, r, err)
		return
	}

	writeRaw(w, http.StatusOK, data)
}

// Veo3Create handles POST /api/veo3/create requests.
func (h *Handlers) Veo3Create(w http.ResponseWriter, r *http.Request) {
	var req Veo3CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "Invalid request payload: prompt is required")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	apiKey := resolveKey(req.Token, h.keys.Veo3)
	if apiKey == "" {
		writeError(w, http.StatusUnauthorized, "Veo3 API key not configured")
		return
	}

	opts := Veo3Options{}
	if req.Options != nil {
		opts = *req.Options
	}
	body := veo3UpstreamBody{
		Model:          orDefault(opts.Model, provider.Veo3ModelFastFrames),
		Prompt:         req.Prompt,
		EnhancePrompt:  boolOr(opts.EnhancePrompt, true),
		EnableUpsample: boolOr(opts.EnableUpsample, false),
		AspectRatio:    orDefault(opts.AspectRatio, provider.AspectLandscape),
	}
	if len(opts.Images) > 0 {
		body.Images = opts.Images
	}

	data, err := h.upstream.Create(r.Context(), apiKey, body)
	if err != nil {
		var se *upstream.StatusError
		if errors.As(err, &se) {
			h.logger.Warn("veo3 create rejected upstream",
				slog.Int("status", se.Code),
				slog.String("request_id", RequestIDFromContext(r.Context())),
			)
			writeError(w, se.Code, fmt.Sprintf("Veo3 API error: %d %s", se.Code, string(se.Body)))
			return
		}
		h.unexpected(w, r, err)
		return
	}

	raw := jsonOrNil(data)
	if raw == nil {
		h.unexpected(w, r, errors.New("upstream returned a non-JSON create response"))
		return
	}
	writeJSON(w, http.StatusOK, h.veo3Response(raw))
}

// veo3Response names the job from the first identifier upstream provides.
func (h *Handlers) veo3Response(raw json.RawMessage) Veo3CreateResponse {
	var data struct {
		ID      any `json:"id"`
		Choices []struct {
			Message struct {
				Content any `json:"content"`
			} `json:"message"`
			FinishReason *string `json:"finish_reason"`
		} `json:"choices"`
	}
	_ = json.Unmarshal(raw, &data)

	resp := Veo3CreateResponse{ID: data.ID, Status: "submitted", Response: raw}
	if len(data.Choices) > 0 {
		if resp.ID == nil {
			resp.ID = data.Choices[0].Message.Content
		}
		if fr := data.Choices[0].FinishReason; fr != nil {
			resp.Status = *fr
		}
	}
	if resp.ID == nil {
		resp.ID = id.Fallback("veo3", h.now())
	}
	return resp
}

// Query returns the handler of a provider's detail route. Identical
// concurrent lookups share one upstream call.
func (h *Handlers) Query(p provider.Name) http.HandlerFunc {
	envKey := h.keys.Sora2
	if p == provider.Veo3 {
		envKey = h.keys.Veo3
	}

	return func(w http.ResponseWriter, r *http.Request) {
		jobID := r.URL.Query().Get("id")
		if jobID == "" {
			writeError(w, http.StatusBadRequest, "missing_id")
			return
		}
		token := r.URL.Query().Get("token")
		if token == "" {
			token = resolveKey("", envKey)
		}

		// The shared call must outlive whichever caller started it.
		ctx := context.WithoutCancel(r.Context())
		v, err, shared := h.queries.Do(token+"\x00"+jobID, func() (any, error) {
			return h.upstream.Query(ctx, token, jobID)
		})
		if err != nil {
			var se *upstream.StatusError
			if errors.As(err, &se) {
				writeJSON(w, se.Code, ErrorResponse{Error: "query_failed", Detail: jsonOrNil(se.Body)})
				return
			}
			h.unexpected(w, r, err)
			return
		}
		if shared {
			h.logger.Debug("query shared",
				slog.String("provider", string(p)),
				slog.String("job_id", jobID),
			)
		}
		writeRaw(w, http.StatusOK, v.([]byte))
	}
}

// decode reads and validates a JSON body, answering 400 on failure.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_json", Message: err.Error()})
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return false
	}
	return true
}

func (h *Handlers) unexpected(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("proxy request failed",
		slog.String("path", r.URL.Path),
		slog.String("request_id", RequestIDFromContext(r.Context())),
		slog.String("error", err.Error()),
	)
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "unexpected_error", Message: err.Error()})
}

// resolveKey prefers a caller token of at least 16 characters and falls
// back to envKey. An unusable envKey yields "".
func resolveKey(token, envKey string) string {
	if len(token) >= minKeyLength {
		return token
	}
	if envKey == placeholderKey || len(envKey) < minKeyLength {
		return ""
	}
	return envKey
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// jsonOrNil returns data when it is valid JSON.
func jsonOrNil(data []byte) json.RawMessage {
	if len(data) == 0 || !json.Valid(data) {
		return nil
	}
	return json.RawMessage(data)
}

// writeRaw relays an upstream JSON body. Non-JSON bodies become null.
func writeRaw(w http.ResponseWriter, status int, data []byte) {
	raw := jsonOrNil(data)
	if raw == nil {
		raw = json.RawMessage("null")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(raw)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
