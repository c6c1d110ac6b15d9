package audithttp

import (
	"context"
	"encoding/csv"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vantage-pos/vantage-pos/internal/audit"
)

// sliceRepo serves canned entries through the same limit/offset contract the
// real repository honors, so the service's paging runs for real.
type sliceRepo struct {
	entries []audit.Entry
}

func (r *sliceRepo) ListEntries(ctx context.Context, filters audit.Filters, limit, offset int) ([]audit.Entry, error) {
	if offset >= len(r.entries) {
		return nil, nil
	}
	end := offset + limit
	if end > len(r.entries) {
		end = len(r.entries)
	}
	return r.entries[offset:end], nil
}

func (r *sliceRepo) ListRoleChanges(ctx context.Context, filters audit.Filters, limit, offset int) ([]audit.RoleChange, error) {
	return nil, nil
}

func entriesFixture(n int) []audit.Entry {
	out := make([]audit.Entry, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, audit.Entry{
			ID:       int64(i),
			ActorID:  42,
			Action:   "orders.list",
			Resource: "orders",
			Outcome:  audit.OutcomeSuccess,
			At:       time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Minute),
		})
	}
	return out
}

func TestExportSpansEveryPage(t *testing.T) {
	repo := &sliceRepo{entries: entriesFixture(120)}
	h := NewHandler(slog.Default(), audit.NewService(repo))

	req := httptest.NewRequest(http.MethodGet, "/export.csv", nil)
	rec := httptest.NewRecorder()
	h.handleExport(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))

	rows, err := csv.NewReader(strings.NewReader(rec.Body.String())).ReadAll()
	require.NoError(t, err)
	// Header plus one row per entry; the service's widest page is 50, so
	// anything past the first window only shows up if the export pages on.
	require.Len(t, rows, 121)
	require.Equal(t, "1", rows[1][0])
	require.Equal(t, "120", rows[120][0])
}

func TestExportIgnoresPagingParameters(t *testing.T) {
	repo := &sliceRepo{entries: entriesFixture(60)}
	h := NewHandler(slog.Default(), audit.NewService(repo))

	req := httptest.NewRequest(http.MethodGet, "/export.csv?page=3&page_size=5", nil)
	rec := httptest.NewRecorder()
	h.handleExport(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	rows, err := csv.NewReader(strings.NewReader(rec.Body.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 61)
	for i := 1; i <= 60; i++ {
		require.Equal(t, strconv.Itoa(i), rows[i][0])
	}
}
