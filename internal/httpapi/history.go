package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/vocalis-ai/vocalis/pkg/store"
)

// historyRow is one call in the history listing.
type historyRow struct {
	ID          string    `json:"id"`
	AgentName   string    `json:"agent_name"`
	ClientType  string    `json:"client_type"`
	Status      string    `json:"status"`
	PhoneNumber string    `json:"phone_number,omitempty"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time,omitzero"`
}

// historyPage is the paged listing response.
type historyPage struct {
	Rows  []historyRow `json:"rows"`
	Total int          `json:"total"`
}

// transcriptLine is one line of a call detail transcript.
type transcriptLine struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// historyDetailBody is the detail response for one call.
type historyDetailBody struct {
	Call       historyRow       `json:"call"`
	Transcript []transcriptLine `json:"transcript"`
	Metadata   map[string]any   `json:"metadata,omitempty"`
}

func (s *Server) historyRows(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := queryInt(q.Get("limit"), 50)
	offset := queryInt(q.Get("offset"), 0)
	clientType := q.Get("client_type")

	records, total, err := s.calls.GetCalls(r.Context(), limit, offset, clientType)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	rows := make([]historyRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, toRow(rec))
	}
	writeJSON(w, http.StatusOK, historyPage{Rows: rows, Total: total})
}

func (s *Server) historyDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	rec, err := s.calls.GetByID(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	entries, err := s.transcripts.GetByCall(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	lines := make([]transcriptLine, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, transcriptLine{
			Role:      string(e.Role),
			Content:   e.Content,
			Timestamp: e.Timestamp,
		})
	}

	writeJSON(w, http.StatusOK, historyDetailBody{
		Call:       toRow(*rec),
		Transcript: lines,
		Metadata:   rec.Metadata,
	})
}

func (s *Server) deleteCall(w http.ResponseWriter, r *http.Request) {
	if err := s.calls.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) clearHistory(w http.ResponseWriter, r *http.Request) {
	count, err := s.calls.Clear(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": count})
}

func toRow(rec store.CallRecord) historyRow {
	return historyRow{
		ID:          rec.ID,
		AgentName:   rec.AgentName,
		ClientType:  rec.ClientType,
		Status:      string(rec.Status),
		PhoneNumber: rec.PhoneNumber,
		StartTime:   rec.StartTime,
		EndTime:     rec.EndTime,
	}
}

func queryInt(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
