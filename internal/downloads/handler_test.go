package downloads_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/aegisx-platform/eclaim-rep-download-sub002/internal/downloads"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/keylock"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/routes"
)

func newMux(f *fixture) *http.ServeMux {
	mux := http.NewServeMux()
	routes.Register(mux, f.sys.Handler().Routes())
	return mux
}

func do(t *testing.T, mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHandlerSessionLifecycle(t *testing.T) {
	f := newFixture(t)
	f.source.add(downloads.SourceClaims, "eclaim_10670_OP_25680101.xls", "one")
	mux := newMux(f)

	rec := do(t, mux, "POST", "/downloads/sessions", `{"source_type":"claims","params":{"fiscal_year":2568}}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("start status = %d, body = %s", rec.Code, rec.Body)
	}

	var created downloads.Session
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	f.wait(t, created.ID)

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"find", "GET", "/downloads/sessions/" + created.ID.String(), http.StatusOK},
		{"list", "GET", "/downloads/sessions?source_type=claims", http.StatusOK},
		{"files", "GET", "/downloads/sessions/" + created.ID.String() + "/files?status=completed", http.StatusOK},
		{"events", "GET", "/downloads/sessions/" + created.ID.String() + "/events", http.StatusOK},
		{"cancel finished", "POST", "/downloads/sessions/" + created.ID.String() + "/cancel", http.StatusConflict},
		{"resume completed", "POST", "/downloads/sessions/" + created.ID.String() + "/resume", http.StatusConflict},
		{"find unknown", "GET", "/downloads/sessions/" + uuid.NewString(), http.StatusNotFound},
		{"find bad id", "GET", "/downloads/sessions/not-a-uuid", http.StatusBadRequest},
		{"failed", "GET", "/downloads/failed?source_type=claims", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, mux, tt.method, tt.path, "")
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d, body = %s", rec.Code, tt.want, rec.Body)
			}
		})
	}

	t.Run("files body", func(t *testing.T) {
		rec := do(t, mux, "GET", "/downloads/sessions/"+created.ID.String()+"/files", "")
		var files []downloads.File
		if err := json.NewDecoder(rec.Body).Decode(&files); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(files) != 1 || files[0].Status != downloads.FileCompleted {
			t.Errorf("files = %+v, want one completed file", files)
		}
	})
}

func TestHandlerStartErrors(t *testing.T) {
	f := newFixture(t)
	mux := newMux(f)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{`, http.StatusBadRequest},
		{"unknown source", `{"source_type":"invoices"}`, http.StatusBadRequest},
		{"bad scheme", `{"source_type":"claims","params":{"schemes":["ABC"]}}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, mux, "POST", "/downloads/sessions", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestHandlerResetFailed(t *testing.T) {
	f := newFixture(t)
	mux := newMux(f)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"empty body resets all", "", http.StatusOK},
		{"scoped by source", `{"source_type":"statement"}`, http.StatusOK},
		{"unknown source", `{"source_type":"invoices"}`, http.StatusBadRequest},
		{"malformed", `{"source_type":`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, mux, "POST", "/downloads/failed/reset", tt.body)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d, body = %s", rec.Code, tt.want, rec.Body)
			}
			if tt.want == http.StatusOK {
				var result downloads.ResetResult
				if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
					t.Fatalf("decode: %v", err)
				}
			}
		})
	}
}

func TestMapHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{downloads.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("wrap: %w", downloads.ErrNotFound), http.StatusNotFound},
		{&keylock.BusyError{Key: "claims"}, http.StatusConflict},
		{downloads.ErrDuplicate, http.StatusConflict},
		{downloads.ErrNotCancellable, http.StatusConflict},
		{downloads.ErrNotResumable, http.StatusConflict},
		{downloads.ErrInvalidParams, http.StatusBadRequest},
		{downloads.ErrUnknownSource, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := downloads.MapHTTPStatus(tt.err); got != tt.want {
				t.Errorf("MapHTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
