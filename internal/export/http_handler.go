package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/rpattn/entityhistory/internal/snapshot"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	service *Service
	logger  *log.Logger
}

// NewHTTPHandler serves GET /snapshots/{entityType}/{id}.
func NewHTTPHandler(service *Service, logger *log.Logger) http.Handler {
	if logger == nil {
		logger = log.Default()
	}
	h := &Handler{service: service, logger: logger}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /snapshots/{entityType}/{id}", h.handleSnapshot)
	return mux
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	at, err := parseAt(r.URL.Query().Get("at"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid at: %v", err), http.StatusBadRequest)
		return
	}

	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	switch format {
	case "", "json", "xlsx", "diff":
	default:
		http.Error(w, fmt.Sprintf("unsupported format %q", format), http.StatusBadRequest)
		return
	}

	view, err := h.service.Snapshot(r.Context(), r.PathValue("entityType"), r.PathValue("id"), at)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			h.logger.Printf("[HTTP] snapshot %s/%s failed: %v", r.PathValue("entityType"), r.PathValue("id"), err)
			http.Error(w, "failed to reconstruct snapshot", status)
			return
		}
		http.Error(w, err.Error(), status)
		return
	}

	switch format {
	case "xlsx":
		var buf bytes.Buffer
		if err := WriteWorkbook(&buf, view); err != nil {
			h.logger.Printf("[HTTP] workbook for %s/%s failed: %v", view.EntityType, view.Key, err)
			http.Error(w, "failed to render workbook", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", xlsxContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName(view)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
	case "diff":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(DiffAgainstCurrent(view)))
	default:
		writeJSON(w, http.StatusOK, view)
	}
}

func parseAt(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, snapshot.ErrUnknownEntityType), errors.Is(err, snapshot.ErrInvalidKey):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func fileName(view SnapshotView) string {
	sanitize := func(value string) string {
		return strings.Map(func(r rune) rune {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
				return r
			default:
				return '_'
			}
		}, value)
	}
	return fmt.Sprintf("%s_%s_%s.xlsx", sanitize(view.EntityType), sanitize(view.Key), view.At.Format("20060102T150405Z"))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
