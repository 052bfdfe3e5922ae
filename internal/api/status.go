package api

import (
	"net/http"

	"github.com/seantiz/apartment/internal/store"
)

type healthResponse struct {
	Status string `json:"status"`
	State  string `json:"apartment_state"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		State:  s.engine.Status().Apartment.State,
	})
}

func (s *Server) handleGetApartment(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) handleListKinds(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Kinds())
}

// statsResponse is the JSON response for GET /v1/stats.
type statsResponse struct {
	Objects   *store.ObjectStats `json:"objects"`
	Tasks     taskStats          `json:"tasks"`
	LiveNow   int                `json:"live_now"`
	CanUnload bool               `json:"can_unload"`
}

type taskStats struct {
	Submitted uint64 `json:"submitted"`
	Executed  uint64 `json:"executed"`
	Rejected  uint64 `json:"rejected"`
	Queued    int    `json:"queued"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetObjectStats(r.Context())
	if err != nil {
		s.logger.Error("get object stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	st := s.engine.Status()
	s.writeJSON(w, http.StatusOK, statsResponse{
		Objects: stats,
		Tasks: taskStats{
			Submitted: st.Apartment.Submitted,
			Executed:  st.Apartment.Executed,
			Rejected:  st.Apartment.Rejected,
			Queued:    st.Apartment.Queued,
		},
		LiveNow:   st.LiveObjects,
		CanUnload: st.CanUnload,
	})
}
