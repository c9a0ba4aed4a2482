package sponsor

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/belulok/quest-chain/internal/telemetry"
)

// Handler serves POST /api/sponsor. Rate limiting is applied by the caller's middleware.
type Handler struct {
	sponsor Sponsor
}

// NewHandler creates a Handler around s.
func NewHandler(s Sponsor) *Handler {
	return &Handler{sponsor: s}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, Response{Error: "method not allowed"})
		return
	}

	ctx, span := telemetry.Tracer().Start(r.Context(), "sponsor.relay")
	defer span.End()

	var fields map[string]any
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&fields); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Error: "request body must be a JSON object"})
		return
	}
	txBytes, ok := fields["txBytes"].(string)
	if !ok || txBytes == "" {
		writeJSON(w, http.StatusBadRequest, Response{Error: "txBytes is required and must be a string"})
		return
	}
	sender, ok := fields["sender"].(string)
	if !ok || sender == "" {
		writeJSON(w, http.StatusBadRequest, Response{Error: "sender is required and must be a string"})
		return
	}
	span.SetAttributes(attribute.String("sponsor.sender", sender))

	sponsored, err := h.sponsor.Sponsor(ctx, txBytes, sender)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		slog.Error("sponsorship failed", "sender", sender, "error", err)
		writeJSON(w, http.StatusBadRequest, Response{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, Response{Success: true, SponsoredTxBytes: sponsored})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
