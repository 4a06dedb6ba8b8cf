package portal_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/aegisx-platform/eclaim-rep-download-sub002/internal/config"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/internal/portal"
)

const firstPage = `<html><head><link rel="next" href="/rep/list?page=2"></head><body>
<table>
<tr><td><a href="/download?filename=eclaim_10670_OP_25680301.xls">eclaim_10670_OP_25680301.xls</a></td></tr>
<tr><td><a href="/files/eclaim_10670_IP_25680301.xlsx">download</a></td></tr>
<tr><td><a href="javascript:void(0)">print</a></td></tr>
<tr><td><a href="/help">help</a></td></tr>
</table></body></html>`

const secondPage = `<html><body>
<a href="/files/eclaim_10670_IP_25680301.xlsx">duplicate</a>
<a href="stm_10670_2568.csv">stm_10670_2568.csv</a>
<a rel="next" href="/rep/list?page=2">again</a>
</body></html>`

const loginPage = `<html><body><form><input type="text" name="user"><input type="password" name="pass"></form></body></html>`

func newClient(t *testing.T, srv *httptest.Server) *portal.Client {
	t.Helper()
	cfg := &config.PortalConfig{
		BaseURL:   srv.URL,
		Cookie:    "JSESSIONID=abc",
		UserAgent: "test-agent",
		Headers:   map[string]string{"X-Hospital": "10670"},
		Listings:  map[string]string{"claims": "/rep/list"},
	}
	c, err := portal.New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestList(t *testing.T) {
	var gotCookie, gotAgent, gotHeader, gotFY string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "":
			gotCookie = r.Header.Get("Cookie")
			gotAgent = r.Header.Get("User-Agent")
			gotHeader = r.Header.Get("X-Hospital")
			gotFY = r.URL.Query().Get("fy")
			fmt.Fprint(w, firstPage)
		case "2":
			fmt.Fprint(w, secondPage)
		}
	}))
	defer srv.Close()

	files, err := newClient(t, srv).List(context.Background(), "claims", url.Values{"fy": {"2568"}})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	want := []string{
		"eclaim_10670_OP_25680301.xls",
		"eclaim_10670_IP_25680301.xlsx",
		"stm_10670_2568.csv",
	}
	if len(files) != len(want) {
		t.Fatalf("got %d files, want %d: %+v", len(files), len(want), files)
	}
	for i, name := range want {
		if files[i].Filename != name {
			t.Errorf("files[%d] = %s, want %s", i, files[i].Filename, name)
		}
	}
	if files[2].URL != srv.URL+"/rep/stm_10670_2568.csv" {
		t.Errorf("relative link not resolved: %s", files[2].URL)
	}

	if gotCookie != "JSESSIONID=abc" || gotAgent != "test-agent" || gotHeader != "10670" {
		t.Errorf("headers not sent: cookie=%q agent=%q header=%q", gotCookie, gotAgent, gotHeader)
	}
	if gotFY != "2568" {
		t.Errorf("params not sent: fy=%q", gotFY)
	}
}

func TestListErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		status int
		body   string
		want   error
	}{
		{"unknown source", "transfer", http.StatusOK, "", portal.ErrUnknownSource},
		{"unauthorized", "claims", http.StatusUnauthorized, "", portal.ErrUnauthorized},
		{"forbidden", "claims", http.StatusForbidden, "", portal.ErrUnauthorized},
		{"login page", "claims", http.StatusOK, loginPage, portal.ErrUnauthorized},
		{"server error", "claims", http.StatusBadGateway, "", portal.ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			_, err := newClient(t, srv).List(context.Background(), tt.source, nil)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/files/missing.xls" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, "content")
	}))
	defer srv.Close()

	c := newClient(t, srv)

	body, err := c.Fetch(context.Background(), srv.URL+"/files/a.xls")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	data, _ := io.ReadAll(body)
	body.Close()
	if string(data) != "content" {
		t.Errorf("body = %q", data)
	}

	if _, err := c.Fetch(context.Background(), "/files/missing.xls"); !errors.Is(err, portal.ErrNotFound) {
		t.Errorf("missing file error = %v, want ErrNotFound", err)
	}
}
