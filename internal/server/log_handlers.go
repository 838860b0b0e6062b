package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/degiro-portfolio/degiro-portfolio/pkg/logger"
)

// LogHandlers serves recent log lines from the in-memory ring buffer
type LogHandlers struct {
	buffer *logger.RingBuffer
	log    zerolog.Logger
}

// NewLogHandlers creates a new log handlers instance
func NewLogHandlers(buffer *logger.RingBuffer, log zerolog.Logger) *LogHandlers {
	return &LogHandlers{
		buffer: buffer,
		log:    log.With().Str("component", "log_handlers").Logger(),
	}
}

// LogContentResponse represents log content
type LogContentResponse struct {
	Lines  []string `json:"lines"`
	Total  int      `json:"total"`
	Status string   `json:"status"`
}

// HandleGetLogs handles GET /api/system/logs?lines=&level=&search=
func (h *LogHandlers) HandleGetLogs(w http.ResponseWriter, r *http.Request) {
	lines := parseLineCount(r.URL.Query().Get("lines"), 100)
	level := strings.ToUpper(r.URL.Query().Get("level"))
	search := r.URL.Query().Get("search")

	all := h.lines()
	filtered := tail(filterLogs(all, level, search), lines)

	writeJSON(w, http.StatusOK, LogContentResponse{
		Lines:  filtered,
		Total:  len(all),
		Status: "ok",
	}, h.log)
}

// HandleGetErrors handles GET /api/system/logs/errors
func (h *LogHandlers) HandleGetErrors(w http.ResponseWriter, r *http.Request) {
	lines := parseLineCount(r.URL.Query().Get("lines"), 500)

	all := h.lines()
	errorLines := tail(filterLogs(all, "ERROR", ""), lines)

	writeJSON(w, http.StatusOK, LogContentResponse{
		Lines:  errorLines,
		Total:  len(all),
		Status: "ok",
	}, h.log)
}

func (h *LogHandlers) lines() []string {
	if h.buffer == nil {
		return []string{}
	}
	return h.buffer.Lines()
}

// parseLineCount reads the lines parameter, capped at 10000
func parseLineCount(param string, def int) int {
	lines := def
	if param != "" {
		if parsed, err := strconv.Atoi(param); err == nil && parsed > 0 {
			lines = parsed
		}
	}
	if lines > 10000 {
		lines = 10000
	}
	return lines
}

func tail(lines []string, n int) []string {
	if len(lines) > n {
		return lines[len(lines)-n:]
	}
	return lines
}

// filterLogs filters log lines by level and search term
func filterLogs(lines []string, level string, search string) []string {
	filtered := make([]string, 0, len(lines))

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if level != "" && !lineMatchesLevel(line, level) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(line), strings.ToLower(search)) {
			continue
		}
		filtered = append(filtered, line)
	}

	return filtered
}

// lineMatchesLevel checks if a log line matches the specified level.
// Handles zerolog JSON lines as well as plain text.
func lineMatchesLevel(line string, level string) bool {
	if strings.Contains(line, `"level"`) {
		return strings.Contains(strings.ToLower(line), `"level":"`+strings.ToLower(level)+`"`)
	}

	upperLine := strings.ToUpper(line)
	upperLevel := strings.ToUpper(level)

	return strings.Contains(upperLine, upperLevel+":") ||
		strings.Contains(upperLine, "["+upperLevel+"]") ||
		strings.Contains(upperLine, " "+upperLevel+" ")
}
