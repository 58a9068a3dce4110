package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentsIndexed_Counts(t *testing.T) {
	before := testutil.ToFloat64(DocumentsIndexed.WithLabelValues("Page", "bulk"))
	DocumentsIndexed.WithLabelValues("Page", "bulk").Add(3)
	assert.Equal(t, before+3, testutil.ToFloat64(DocumentsIndexed.WithLabelValues("Page", "bulk")))
}

func TestHandler_ServesMetrics(t *testing.T) {
	Connected.WithLabelValues("worker").Set(1)
	Connected.WithLabelValues("reindex").Set(0)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `indexsync_connected{role="worker"} 1`)
	assert.Contains(t, rec.Body.String(), `indexsync_connected{role="reindex"} 0`)
}
