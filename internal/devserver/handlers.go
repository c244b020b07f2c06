package devserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

type CheckinRequest struct {
	RegNo string `json:"regNo"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Roster.Stats())
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	regNo := strings.TrimSpace(r.URL.Query().Get("regNo"))
	if regNo == "" {
		writeError(w, http.StatusBadRequest, "Registration number is required")
		return
	}
	p, err := s.Roster.Get(regNo)
	if err != nil {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleCheckin(w http.ResponseWriter, r *http.Request) {
	var req CheckinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.RegNo) == "" {
		writeError(w, http.StatusBadRequest, "Registration number is required")
		return
	}

	p, err := s.Roster.CheckIn(req.RegNo)
	switch {
	case errors.Is(err, ErrUnknown):
		writeError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, ErrAlreadyScanned):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":     "Already checked in",
			"scannedAt": p.ScannedAt,
		})
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		s.Log.Infof("Checked in %s (%s)", p.RegistrationNo, p.Name)
		writeJSON(w, http.StatusOK, p)
	}
}

func (s *Server) handleParticipants(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Roster.List())
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
