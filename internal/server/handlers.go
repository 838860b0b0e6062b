package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/degiro-portfolio/degiro-portfolio/internal/version"
)

// handlePing reports that the server is up
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(s.started)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"server":         "DEGIRO Portfolio",
		"version":        version.Version,
		"started":        s.started.UTC().Format(time.RFC3339),
		"uptime_seconds": int64(uptime.Seconds()),
		"uptime":         uptime.Truncate(time.Second).String(),
	})
}

// handleHealth checks the database
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.container.DB.HealthCheck(r.Context()); err != nil {
		s.log.Error().Err(err).Msg("Health check failed")
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "unhealthy",
			"detail": err.Error(),
		})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"version": version.Version,
	})
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, data, s.log)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}, log zerolog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, detail string, log zerolog.Logger) {
	writeJSON(w, status, map[string]string{"detail": detail}, log)
}
