package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordTableStep(t *testing.T) {
	before := testutil.ToFloat64(TableStepsTotal.WithLabelValues("build", "skipped"))
	RecordTableStep("build", "skipped")
	RecordTableStep("build", "skipped")
	assert.InDelta(t, before+2, testutil.ToFloat64(TableStepsTotal.WithLabelValues("build", "skipped")), 0.001)
}

func TestRecordMaterialize(t *testing.T) {
	okBefore := testutil.ToFloat64(MaterializeBuildsTotal.WithLabelValues("success"))
	failBefore := testutil.ToFloat64(MaterializeBuildsTotal.WithLabelValues("failure"))

	RecordMaterialize(150*time.Millisecond, nil)
	RecordMaterialize(time.Second, errors.New("corrupt parquet"))

	assert.InDelta(t, okBefore+1, testutil.ToFloat64(MaterializeBuildsTotal.WithLabelValues("success")), 0.001)
	assert.InDelta(t, failBefore+1, testutil.ToFloat64(MaterializeBuildsTotal.WithLabelValues("failure")), 0.001)
}

func TestRecordQuery(t *testing.T) {
	before := testutil.ToFloat64(QueryErrorsTotal.WithLabelValues("cli"))
	RecordQuery("cli", time.Millisecond, nil)
	RecordQuery("cli", time.Millisecond, errors.New("parser error"))
	assert.InDelta(t, before+1, testutil.ToFloat64(QueryErrorsTotal.WithLabelValues("cli")), 0.001)
}

func TestHandler(t *testing.T) {
	RecordFinding("gid_uniqueness", "PASS")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "nflpipe_qa_findings_total")
}

func TestRecordHTTPRequest(t *testing.T) {
	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("/api/tables", "200"))
	RecordHTTPRequest("/api/tables", http.StatusOK)
	assert.InDelta(t, before+1, testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("/api/tables", "200")), 0.001)
}
