package api

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/asana/internal/store"
)

// HoldHandler handles GET /api/holds.
type HoldHandler struct {
	store *store.Store
	log   logrus.FieldLogger
}

// NewHoldHandler creates a new HoldHandler with the given store.
func NewHoldHandler(s *store.Store, log logrus.FieldLogger) *HoldHandler {
	return &HoldHandler{store: s, log: log.WithField("handler", "holds")}
}

type holdResponse struct {
	ID         string  `json:"id"`
	Target     string  `json:"target"`
	StartedAt  string  `json:"started_at"`
	EndedAt    string  `json:"ended_at"`
	DurationS  float64 `json:"duration_seconds"`
	FrameCount int     `json:"frame_count"`
}

type listHoldsResponse struct {
	Holds []holdResponse `json:"holds"`
}

type holdCountsResponse struct {
	Counts map[string]int `json:"counts"`
}

// ServeHTTP returns per-target hold counts, or the holds of one connection
// when ?conn_id= is given.
func (h *HoldHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	connID := r.URL.Query().Get("conn_id")
	if connID == "" {
		counts, err := h.store.Holds().CountByTarget(r.Context())
		if err != nil {
			h.log.WithError(err).Error("failed to count holds")
			writeError(w, http.StatusInternalServerError, "Failed to count holds")
			return
		}
		writeJSON(w, http.StatusOK, holdCountsResponse{Counts: counts})
		return
	}

	holds, err := h.store.Holds().ListByConnection(r.Context(), connID)
	if err != nil {
		h.log.WithError(err).Error("failed to list holds")
		writeError(w, http.StatusInternalServerError, "Failed to list holds")
		return
	}

	response := listHoldsResponse{Holds: make([]holdResponse, 0, len(holds))}
	for _, hd := range holds {
		response.Holds = append(response.Holds, holdResponse{
			ID:         hd.ID,
			Target:     hd.Target,
			StartedAt:  hd.StartedAt.Format(time.RFC3339Nano),
			EndedAt:    hd.EndedAt.Format(time.RFC3339Nano),
			DurationS:  hd.EndedAt.Sub(hd.StartedAt).Seconds(),
			FrameCount: hd.FrameCount,
		})
	}
	writeJSON(w, http.StatusOK, response)
}
