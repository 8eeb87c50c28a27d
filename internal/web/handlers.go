package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jfmyers9/spotlog/internal/daemon"
)

// ErrorResponse is the JSON body of a failed API call
type ErrorResponse struct {
	Error string `json:"error"`
}

// home renders the status page (GET /)
func (s *Server) home(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "")
}

// login sends the browser to Spotify's consent screen (GET /login)
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, s.ctl.AuthURL(), http.StatusFound)
}

// callback receives the authorization code (GET /callback)
func (s *Server) callback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if errMsg := query.Get("error"); errMsg != "" {
		s.logger.Warn().Str("error", errMsg).Msg("Authorization denied")
		s.render(w, http.StatusBadRequest, "Spotify authorization was not granted: "+errMsg)
		return
	}

	err := s.ctl.CodeReceived(r.Context(), query.Get("code"), query.Get("state"))
	switch {
	case err == nil, errors.Is(err, daemon.ErrCodeIgnored):
		http.Redirect(w, r, "/", http.StatusSeeOther)
	case errors.Is(err, daemon.ErrStateMismatch):
		s.render(w, http.StatusBadRequest, daemon.Describe(err))
	case query.Get("code") == "":
		s.render(w, http.StatusBadRequest, "Missing authorization code.")
	default:
		// The exchange failure is already in the status message
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

// startForm handles the start button (POST /start)
func (s *Server) startForm(w http.ResponseWriter, r *http.Request) {
	if err := s.ctl.Start(); err != nil {
		s.render(w, http.StatusConflict, daemon.Describe(err))
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// stopForm handles the stop button (POST /stop)
func (s *Server) stopForm(w http.ResponseWriter, r *http.Request) {
	s.ctl.Stop()
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) apiStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctl.Snapshot())
}

func (s *Server) apiStart(w http.ResponseWriter, r *http.Request) {
	if err := s.ctl.Start(); err != nil {
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: daemon.Describe(err)})
		return
	}
	writeJSON(w, http.StatusOK, s.ctl.Snapshot())
}

func (s *Server) apiStop(w http.ResponseWriter, r *http.Request) {
	s.ctl.Stop()
	writeJSON(w, http.StatusOK, s.ctl.Snapshot())
}

func (s *Server) render(w http.ResponseWriter, status int, flash string) {
	var buf bytes.Buffer
	data := PageData{Flash: flash, Status: s.ctl.Snapshot()}
	if err := s.templates.RenderIndex(&buf, data); err != nil {
		s.logger.Error().Err(err).Msg("Failed to render page")
		http.Error(w, "Failed to render template", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
