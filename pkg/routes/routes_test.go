package routes_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/routes"
)

func status(code int) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(code)
	}
}

func TestRegister(t *testing.T) {
	mux := http.NewServeMux()

	routes.Register(mux, routes.Group{
		Prefix: "/downloads",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "/failed", Handler: status(http.StatusOK)},
		},
		Children: []routes.Group{
			{
				Prefix: "/sessions",
				Routes: []routes.Route{
					{Method: "GET", Pattern: "", Handler: status(http.StatusOK)},
					{Method: "POST", Pattern: "/{id}/cancel", Handler: status(http.StatusAccepted)},
				},
			},
		},
	})

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{"GET", "/downloads/failed", http.StatusOK},
		{"GET", "/downloads/sessions", http.StatusOK},
		{"POST", "/downloads/sessions/abc/cancel", http.StatusAccepted},
		{"GET", "/downloads/sessions/abc/cancel", http.StatusMethodNotAllowed},
		{"GET", "/imports", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
