package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ayusman/asana/internal/store"
)

// SessionCookie identifies a visitor across score submissions.
const SessionCookie = "asana_session"

// ScoreRedirect is where clients go after submitting a score.
const ScoreRedirect = "/score/"

// ScoreHandler handles GET and POST on /api/scores.
type ScoreHandler struct {
	store *store.Store
	log   logrus.FieldLogger
}

// NewScoreHandler creates a new ScoreHandler with the given store.
func NewScoreHandler(s *store.Store, log logrus.FieldLogger) *ScoreHandler {
	return &ScoreHandler{store: s, log: log.WithField("handler", "scores")}
}

// ServeHTTP implements the http.Handler interface.
func (h *ScoreHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.submit(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Invalid request method")
	}
}

// submitScoreRequest fields accept JSON numbers or numeric strings.
type submitScoreRequest struct {
	Score           json.RawMessage `json:"score"`
	Set1Time        json.RawMessage `json:"set1_time"`
	Set2Time        json.RawMessage `json:"set2_time"`
	SuccessCount    json.RawMessage `json:"success_count"`
	AverageHoldTime json.RawMessage `json:"average_hold_time"`
}

type submitScoreResponse struct {
	Status      string `json:"status"`
	RedirectURL string `json:"redirect_url"`
}

type scoreResponse struct {
	Score     float64 `json:"score"`
	CreatedAt string  `json:"created_at"`
	SessionID string  `json:"session_id"`
}

type listScoresResponse struct {
	Scores []scoreResponse `json:"scores"`
}

func missing(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// parseNumber accepts a JSON number or a numeric string.
func parseNumber(raw json.RawMessage) (float64, error) {
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
		if v, err = strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
			return 0, err
		}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.New("not a finite number")
	}
	return v, nil
}

func parseScore(raw json.RawMessage) (float64, error) {
	if missing(raw) {
		return 0, errors.New("missing score")
	}
	return parseNumber(raw)
}

// parseSetTime returns NULL for an absent, empty or zero time.
func parseSetTime(raw json.RawMessage) (sql.NullFloat64, error) {
	if missing(raw) || string(raw) == `""` {
		return sql.NullFloat64{}, nil
	}
	v, err := parseNumber(raw)
	if err != nil || v == 0 {
		return sql.NullFloat64{}, err
	}
	return sql.NullFloat64{Float64: v, Valid: true}, nil
}

// parseCount accepts a number (truncated) or an integral string; absent means 0.
func parseCount(raw json.RawMessage) (int, error) {
	if missing(raw) {
		return 0, nil
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err == nil {
		return int(v), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(s))
}

// visitor returns the visitor's session id, issuing a cookie when absent.
func (h *ScoreHandler) visitor(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return c.Value
		}
	}

	id := uuid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// submit handles POST /api/scores.
func (h *ScoreHandler) submit(w http.ResponseWriter, r *http.Request) {
	var req submitScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid score value")
		return
	}
	total, err := parseScore(req.Score)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid score value")
		return
	}
	set1, err1 := parseSetTime(req.Set1Time)
	set2, err2 := parseSetTime(req.Set2Time)
	avgHold, err3 := parseSetTime(req.AverageHoldTime)
	count, err4 := parseCount(req.SuccessCount)
	if err := errors.Join(err1, err2, err3, err4); err != nil {
		h.log.WithError(err).Debug("rejected score details")
		writeError(w, http.StatusBadRequest, "Invalid score details")
		return
	}

	ctx := r.Context()
	sess := &store.Session{
		ID:        h.visitor(w, r),
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	}
	if err := h.store.Sessions().Ensure(ctx, sess); err != nil {
		h.log.WithError(err).Error("failed to save session")
		writeError(w, http.StatusInternalServerError, "Failed to save score")
		return
	}

	score := &store.Score{
		SessionID:       sess.ID,
		TotalTime:       total,
		Set1Time:        set1,
		Set2Time:        set2,
		SuccessCount:    count,
		AverageHoldTime: avgHold,
	}
	if err := h.store.Scores().Create(ctx, score); err != nil {
		h.log.WithError(err).Error("failed to save score")
		writeError(w, http.StatusInternalServerError, "Failed to save score")
		return
	}
	if err := h.store.Sessions().End(ctx, sess.ID, time.Now()); err != nil {
		h.log.WithError(err).Warn("failed to close visitor session")
	}

	h.log.WithFields(logrus.Fields{"session_id": sess.ID, "total_time": total}).Info("score submitted")
	writeJSON(w, http.StatusOK, submitScoreResponse{Status: "success", RedirectURL: ScoreRedirect})
}

// list handles GET /api/scores and returns the leaderboard.
func (h *ScoreHandler) list(w http.ResponseWriter, r *http.Request) {
	scores, err := h.store.Scores().Top(r.Context(), store.DefaultLeaderboardSize)
	if err != nil {
		h.log.WithError(err).Error("failed to list scores")
		writeError(w, http.StatusInternalServerError, "Failed to list scores")
		return
	}

	response := listScoresResponse{Scores: make([]scoreResponse, 0, len(scores))}
	for _, s := range scores {
		response.Scores = append(response.Scores, scoreResponse{
			Score:     s.TotalTime,
			CreatedAt: s.CreatedAt.Format(time.RFC3339),
			SessionID: s.SessionID,
		})
	}

	writeJSON(w, http.StatusOK, response)
}
