package module_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/module"
)

func TestNewPrefixValidation(t *testing.T) {
	tests := []struct {
		prefix    string
		wantPanic bool
	}{
		{"/api", false},
		{"", true},
		{"api", true},
		{"/api/v1", true},
	}

	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			defer func() {
				if r := recover(); (r != nil) != tt.wantPanic {
					t.Errorf("panic = %v, want panic %v", r, tt.wantPanic)
				}
			}()
			m := module.New(tt.prefix, http.NewServeMux())
			if m.Prefix() != tt.prefix {
				t.Errorf("prefix = %s", m.Prefix())
			}
		})
	}
}

func TestRouterDispatch(t *testing.T) {
	inner := http.NewServeMux()

	var receivedPath string
	inner.HandleFunc("GET /downloads/sessions", func(w http.ResponseWriter, r *http.Request) {
		receivedPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	})

	m := module.New("/api", inner)

	var middlewareRan bool
	m.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			middlewareRan = true
			next.ServeHTTP(w, r)
		})
	})

	router := module.NewRouter()
	router.Mount(m)
	router.HandleNative("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	router.HandleNativeHandler("GET /metrics", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	tests := []struct {
		name     string
		path     string
		wantCode int
	}{
		{"module route", "/api/downloads/sessions", http.StatusOK},
		{"trailing slash normalized", "/api/downloads/sessions/", http.StatusOK},
		{"native func", "/healthz", http.StatusNoContent},
		{"native handler", "/metrics", http.StatusAccepted},
		{"unknown", "/nothing", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest("GET", tt.path, nil))
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
		})
	}

	if receivedPath != "/downloads/sessions" {
		t.Errorf("inner path = %s, want /downloads/sessions", receivedPath)
	}
	if !middlewareRan {
		t.Error("module middleware did not run")
	}
}
