package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/ayusman/asana/internal/game"
	"github.com/ayusman/asana/internal/store"
)

// newTestStore creates a new Store with a temporary database for testing.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})

	return s
}

func newScoreHandler(t *testing.T) (*ScoreHandler, *store.Store) {
	t.Helper()
	s := newTestStore(t)
	logger, _ := test.NewNullLogger()
	return NewScoreHandler(s, logger), s
}

func postScore(h http.Handler, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/scores", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestScoreHandler_Submit(t *testing.T) {
	h, s := newScoreHandler(t)

	rec := postScore(h, `{"score": 42.5, "set1_time": 20, "set2_time": 22.5, "success_count": 6, "average_hold_time": 5.1}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	var resp submitScoreResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "success" || resp.RedirectURL != "/score/" {
		t.Errorf("unexpected response: %+v", resp)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != SessionCookie {
		t.Fatalf("expected %s cookie, got %v", SessionCookie, cookies)
	}

	scores, err := s.Scores().ListBySession(context.Background(), cookies[0].Value)
	if err != nil {
		t.Fatalf("ListBySession() error = %v", err)
	}
	if len(scores) != 1 {
		t.Fatalf("expected 1 score, got %d", len(scores))
	}
	sc := scores[0]
	if sc.TotalTime != 42.5 || sc.Set2Time.Float64 != 22.5 || sc.SuccessCount != 6 || sc.AverageHoldTime.Float64 != 5.1 {
		t.Errorf("unexpected stored score: %+v", sc)
	}

	sess, err := s.Sessions().GetByID(context.Background(), cookies[0].Value)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if sess.EndTime == nil {
		t.Error("expected visitor session to be ended after submission")
	}
}

func TestScoreHandler_ReusesCookie(t *testing.T) {
	h, s := newScoreHandler(t)

	first := postScore(h, `{"score": 30}`)
	cookie := first.Result().Cookies()[0]

	second := postScore(h, `{"score": "25.5"}`, cookie)
	if second.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, second.Code)
	}
	if len(second.Result().Cookies()) != 0 {
		t.Error("expected existing cookie to be reused")
	}

	scores, _ := s.Scores().ListBySession(context.Background(), cookie.Value)
	if len(scores) != 2 {
		t.Errorf("expected 2 scores for visitor, got %d", len(scores))
	}
}

func TestScoreHandler_OptionalDetails(t *testing.T) {
	h, s := newScoreHandler(t)

	rec := postScore(h, `{"score": 31, "set1_time": "14.5", "set2_time": 0, "success_count": "4"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	scores, err := s.Scores().ListBySession(context.Background(), rec.Result().Cookies()[0].Value)
	if err != nil || len(scores) != 1 {
		t.Fatalf("ListBySession() = %v, %v", scores, err)
	}
	sc := scores[0]
	if !sc.Set1Time.Valid || sc.Set1Time.Float64 != 14.5 {
		t.Errorf("expected set1_time 14.5, got %+v", sc.Set1Time)
	}
	if sc.Set2Time.Valid {
		t.Errorf("expected zero set2_time to be stored as NULL, got %+v", sc.Set2Time)
	}
	if sc.AverageHoldTime.Valid {
		t.Errorf("expected missing average_hold_time to be NULL, got %+v", sc.AverageHoldTime)
	}
	if sc.SuccessCount != 4 {
		t.Errorf("expected success_count 4, got %d", sc.SuccessCount)
	}

	rec = postScore(h, `{"score": 31, "success_count": "many"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d for invalid success_count, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestScoreHandler_InvalidScore(t *testing.T) {
	h, _ := newScoreHandler(t)

	bodies := []string{
		`{}`,
		`{"score": null}`,
		`{"score": "fast"}`,
		`{"score": [1]}`,
		`not json`,
	}

	for _, body := range bodies {
		rec := postScore(h, body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: expected status %d, got %d", body, http.StatusBadRequest, rec.Code)
			continue
		}
		var resp errorResponse
		json.NewDecoder(rec.Body).Decode(&resp)
		if resp.Error != "Invalid score value" {
			t.Errorf("body %s: unexpected error %q", body, resp.Error)
		}
	}
}

func TestScoreHandler_List(t *testing.T) {
	h, _ := newScoreHandler(t)

	for _, score := range []string{"50", "12", "33"} {
		if rec := postScore(h, `{"score": `+score+`}`); rec.Code != http.StatusOK {
			t.Fatalf("submit failed: %d", rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/scores", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}

	var resp listScoresResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Scores) != 3 {
		t.Fatalf("expected 3 scores, got %d", len(resp.Scores))
	}
	if resp.Scores[0].Score != 12 || resp.Scores[2].Score != 50 {
		t.Errorf("expected ascending scores, got %+v", resp.Scores)
	}
	if _, err := time.Parse(time.RFC3339, resp.Scores[0].CreatedAt); err != nil {
		t.Errorf("created_at not RFC3339: %v", err)
	}
}

func TestScoreHandler_MethodNotAllowed(t *testing.T) {
	h, _ := newScoreHandler(t)

	req := httptest.NewRequest(http.MethodDelete, "/api/scores", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}

func TestHoldHandler(t *testing.T) {
	s := newTestStore(t)
	logger, _ := test.NewNullLogger()
	h := NewHoldHandler(s, logger)
	ctx := context.Background()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.Holds().RecordHold(ctx, "conn-a", game.Hold{Target: "tree", StartedAt: start, EndedAt: start.Add(5 * time.Second), Frames: [][]float64{{1}}})
	s.Holds().RecordHold(ctx, "conn-b", game.Hold{Target: "tree", StartedAt: start, EndedAt: start.Add(6 * time.Second)})

	t.Run("counts per target", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/holds", nil))

		var resp holdCountsResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.Counts["tree"] != 2 {
			t.Errorf("expected 2 tree holds, got %v", resp.Counts)
		}
	})

	t.Run("holds of one connection", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/holds?conn_id=conn-a", nil))

		var resp listHoldsResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if len(resp.Holds) != 1 || resp.Holds[0].DurationS != 5 || resp.Holds[0].FrameCount != 1 {
			t.Errorf("unexpected holds: %+v", resp.Holds)
		}
	})

	t.Run("only GET", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/holds", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
		}
	})
}
