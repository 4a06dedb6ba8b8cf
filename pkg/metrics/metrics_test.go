package metrics_test

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/metrics"
)

func TestHandlerExposesRecordedValues(t *testing.T) {
	m := metrics.New("eclaim")

	m.DownloadFile("claims", "completed", 2048, 1500*time.Millisecond)
	m.SessionStarted("claims")
	m.ImportFile("drugs", "partial", 95, 5)
	m.Reconciled("claims:statements", "import", map[string]int{"matched": 3, "amount_diff": 1})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	text := string(body)

	want := []string{
		`eclaim_download_files_total{source_type="claims",status="completed"} 1`,
		`eclaim_download_bytes_total{source_type="claims"} 2048`,
		`eclaim_download_sessions_active{source_type="claims"} 1`,
		`eclaim_import_rows_total{outcome="failed",schema="drugs"} 5`,
		`eclaim_import_rows_total{outcome="imported",schema="drugs"} 95`,
		`eclaim_reconcile_results{pair="claims:statements",status="matched"} 3`,
		`eclaim_reconcile_runs_total{pair="claims:statements",trigger="import"} 1`,
	}

	for _, w := range want {
		if !strings.Contains(text, w) {
			t.Errorf("exposition missing %q", w)
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *metrics.Metrics

	m.DownloadFile("claims", "failed", 0, 0)
	m.SessionStarted("claims")
	m.SessionFinished("claims")
	m.ImportFile("claims", "completed", 1, 0)
	m.Reconciled("claims:statements", "manual", nil)
}
