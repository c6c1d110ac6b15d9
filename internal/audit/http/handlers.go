// Package audithttp serves the audit log inspection endpoints.
package audithttp

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vantage-pos/vantage-pos/internal/audit"
	"github.com/vantage-pos/vantage-pos/internal/platform/httpx"
)

// LogService is the business contract for reading the audit trail.
type LogService interface {
	Entries(ctx context.Context, filters audit.Filters) (audit.Result, error)
	RoleChanges(ctx context.Context, filters audit.Filters) (audit.ChangeResult, error)
}

// Handler serves audit log queries.
type Handler struct {
	logger  *slog.Logger
	service LogService
	now     func() time.Time
}

// NewHandler builds an audit handler.
func NewHandler(logger *slog.Logger, service LogService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, now: time.Now}
}

func (h *Handler) handleEntries(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Filter", err.Error())
		return
	}
	result, err := h.service.Entries(r.Context(), filters)
	if err != nil {
		h.logger.Error("load audit entries", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"entries": presentEntries(result.Entries),
		"paging":  result.Paging,
	})
}

func (h *Handler) handleRoleChanges(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Filter", err.Error())
		return
	}
	result, err := h.service.RoleChanges(r.Context(), filters)
	if err != nil {
		h.logger.Error("load role changes", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"changes": result.Changes,
		"paging":  result.Paging,
	})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Filter", err.Error())
		return
	}
	// Exports ignore paging parameters: walk every page at the widest
	// window the service allows so the file holds the full filtered trail.
	filters.Page = 1
	filters.PageSize = 50
	var entries []audit.Entry
	for {
		result, err := h.service.Entries(r.Context(), filters)
		if err != nil {
			h.logger.Error("export audit entries", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		entries = append(entries, result.Entries...)
		if !result.Paging.HasNext {
			break
		}
		filters.Page = result.Paging.NextPage
	}
	payload, err := writeCSV(entries)
	if err != nil {
		h.logger.Error("encode audit csv", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="audit-log.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

type entryResponse struct {
	ID         int64          `json:"id"`
	ActorID    int64          `json:"actor_id"`
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	ResourceID string         `json:"resource_id,omitempty"`
	Outcome    string         `json:"outcome"`
	Meta       map[string]any `json:"meta,omitempty"`
	At         time.Time      `json:"at"`
}

func presentEntries(entries []audit.Entry) []entryResponse {
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryResponse{
			ID:         e.ID,
			ActorID:    e.ActorID,
			Action:     e.Action,
			Resource:   e.Resource,
			ResourceID: e.ResourceID,
			Outcome:    string(e.Outcome),
			Meta:       e.Meta,
			At:         e.At,
		})
	}
	return out
}

func writeCSV(entries []audit.Entry) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write([]string{"id", "actor_id", "action", "resource", "resource_id", "outcome", "meta", "at"}); err != nil {
		return nil, err
	}
	for _, e := range entries {
		meta := ""
		if len(e.Meta) > 0 {
			raw, err := json.Marshal(e.Meta)
			if err != nil {
				return nil, err
			}
			meta = string(raw)
		}
		row := []string{
			strconv.FormatInt(e.ID, 10),
			strconv.FormatInt(e.ActorID, 10),
			e.Action,
			e.Resource,
			e.ResourceID,
			string(e.Outcome),
			meta,
			e.At.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return nil, err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (h *Handler) parseFilters(r *http.Request) (audit.Filters, error) {
	q := r.URL.Query()
	var filters audit.Filters
	var err error

	if raw := strings.TrimSpace(q.Get("actor_id")); raw != "" {
		filters.ActorID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return filters, err
		}
	}
	filters.Resource = strings.TrimSpace(q.Get("resource"))
	filters.Action = strings.TrimSpace(q.Get("action"))
	if raw := strings.ToUpper(strings.TrimSpace(q.Get("outcome"))); raw != "" {
		filters.Outcome = audit.Outcome(raw)
	}
	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		filters.From, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return filters, err
		}
	}
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		filters.To, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return filters, err
		}
	}
	if raw := strings.TrimSpace(q.Get("page")); raw != "" {
		filters.Page, err = strconv.Atoi(raw)
		if err != nil {
			return filters, err
		}
	}
	if raw := strings.TrimSpace(q.Get("page_size")); raw != "" {
		filters.PageSize, err = strconv.Atoi(raw)
		if err != nil {
			return filters, err
		}
	}
	return filters, nil
}
