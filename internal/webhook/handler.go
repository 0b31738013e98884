package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/zerolog/hlog"
)

const (
	eventHeader     = "X-GitHub-Event"
	signatureHeader = "X-Hub-Signature-256"

	defaultMaxBody = 10 << 20
)

// Dispatcher runs the pipeline for a validated event.
type Dispatcher interface {
	Dispatch(ctx context.Context, event string, payload *Event) error
}

// Handler is the webhook ingress: ping short-circuit, signature gate,
// schema validation, then dispatch. No JSON from an unverified body is
// ever parsed except ping's zen echo, which carries no trigger.
type Handler struct {
	secret     []byte
	dispatcher Dispatcher
	maxBody    int64
}

func NewHandler(secret string, d Dispatcher) *Handler {
	return &Handler{secret: []byte(secret), dispatcher: d, maxBody: defaultMaxBody}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	event := r.Header.Get(eventHeader)
	if event == "" {
		http.Error(w, "missing "+eventHeader, http.StatusBadRequest)
		return
	}

	if event == "ping" {
		var p struct {
			Zen string `json:"zen"`
		}
		_ = json.Unmarshal(body, &p)
		writeJSON(w, http.StatusOK, map[string]string{"zen": p.Zen})
		return
	}

	if !VerifySignature(h.secret, body, r.Header.Get(signatureHeader)) {
		hlog.FromRequest(r).Warn().Str("event", event).Msg("webhook signature rejected")
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	if err := ValidatePayload(event, body); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Str("event", event).Msg("webhook payload rejected")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var payload Event
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	if err := h.dispatcher.Dispatch(r.Context(), event, &payload); err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("event", event).Str("action", payload.Action).Msg("event processing failed")
		http.Error(w, "event processing failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
