package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/grimsteel/smarttag-go/routewindow"
	"github.com/grimsteel/smarttag-go/smarttag"
)

const contentTypeJSON = "application/json; charset=utf-8"

type healthResponse struct {
	Status   string     `json:"status"`
	Uptime   string     `json:"uptime"`
	LastPoll *time.Time `json:"lastPoll,omitempty"`
}

// HealthHandler reports liveness and the age of the latest snapshot.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{
			Status: "ok",
			Uptime: time.Since(s.startedAt).Round(time.Second).String(),
		}
		if snap, ok := s.source.Latest(); ok {
			resp.LastPoll = &snap.TakenAt
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// SnapshotHandler returns the entire latest snapshot.
func (s *Server) SnapshotHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, ok := s.source.Latest()
		if !ok {
			writeError(w, http.StatusServiceUnavailable, "no snapshot yet")
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

// StudentsHandler lists the students in the latest snapshot.
func (s *Server) StudentsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, ok := s.source.Latest()
		if !ok {
			writeError(w, http.StatusServiceUnavailable, "no snapshot yet")
			return
		}
		students := make([]smarttag.Student, 0, len(snap.Students))
		for _, sd := range snap.Students {
			students = append(students, sd.Student)
		}
		writeJSON(w, http.StatusOK, students)
	}
}

// WindowsHandler returns route windows keyed by student external id. An
// optional ?student= query narrows to one student.
func (s *Server) WindowsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, ok := s.source.Latest()
		if !ok {
			writeError(w, http.StatusServiceUnavailable, "no snapshot yet")
			return
		}
		filter := r.URL.Query().Get("student")
		windows := make(map[string][]routewindow.RouteWindow)
		for _, sd := range snap.Students {
			if filter != "" && sd.Student.ExternalID != filter {
				continue
			}
			windows[sd.Student.ExternalID] = sd.Windows
		}
		if filter != "" && len(windows) == 0 {
			writeError(w, http.StatusNotFound, "unknown student")
			return
		}
		writeJSON(w, http.StatusOK, windows)
	}
}

// RidesHandler returns ride history keyed by student external id. An
// optional ?student= query narrows to one student.
func (s *Server) RidesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, ok := s.source.Latest()
		if !ok {
			writeError(w, http.StatusServiceUnavailable, "no snapshot yet")
			return
		}
		filter := r.URL.Query().Get("student")
		rides := make(map[string][]smarttag.Ride)
		for _, sd := range snap.Students {
			if filter != "" && sd.Student.ExternalID != filter {
				continue
			}
			rides[sd.Student.ExternalID] = sd.Rides
		}
		if filter != "" && len(rides) == 0 {
			writeError(w, http.StatusNotFound, "unknown student")
			return
		}
		writeJSON(w, http.StatusOK, rides)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
