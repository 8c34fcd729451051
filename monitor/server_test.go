package monitor

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/txmlab/go-txm/pv"
	"github.com/txmlab/go-txm/scan"
	"github.com/txmlab/go-txm/scanlog"
	"github.com/txmlab/go-txm/txm"
)

func monitorBindings() []txm.Binding {
	return []txm.Binding{
		{Name: "current", Address: "ring:current", Type: pv.FloatType, Wait: true},
		{Name: "mode", Address: "{ioc_prefix}cam1:Mode", Type: pv.StringType, Wait: true},
		{Name: "shutter", Address: "32idc:shutter", Type: pv.EnumType, Wait: true, PermitRequired: true},
	}
}

func newTestServer(t *testing.T, opts ...txm.Option) (*Server, *pv.SimTransport) {
	t.Helper()

	tr := pv.NewSimTransport()
	ctrl, err := txm.New(monitorBindings(), append([]txm.Option{
		txm.WithTransport(tr),
		txm.WithIOCPrefix("32idcPG3:"),
	}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctrl.Close() })

	return New(ctrl), tr
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	return rr
}

func TestServerPermit(t *testing.T) {
	require := require.New(t)

	t.Run("WithoutPermit", func(t *testing.T) {
		s, _ := newTestServer(t)
		rr := doJSON(t, s.Handler(), http.MethodGet, "/api/permit", nil)
		require.Equal(http.StatusOK, rr.Code)
		require.JSONEq(`{"has_permit": false}`, rr.Body.String())
	})

	t.Run("WithPermit", func(t *testing.T) {
		s, _ := newTestServer(t, txm.WithPermit())
		rr := doJSON(t, s.Handler(), http.MethodGet, "/api/permit", nil)
		require.JSONEq(`{"has_permit": true}`, rr.Body.String())
	})
}

func TestServerListBindings(t *testing.T) {
	require := require.New(t)

	s, _ := newTestServer(t)
	rr := doJSON(t, s.Handler(), http.MethodGet, "/api/bindings", nil)
	require.Equal(http.StatusOK, rr.Code)

	var got []bindingJSON
	require.NoError(json.Unmarshal(rr.Body.Bytes(), &got))
	require.Len(got, 3)
	require.Equal("current", got[0].Name)
	require.Equal("float", got[0].Type)
	// the IOC prefix is expanded in reported addresses
	require.Equal("32idcPG3:cam1:Mode", got[1].Address)
	require.True(got[2].PermitRequired)
}

func TestServerReadPV(t *testing.T) {
	require := require.New(t)

	s, tr := newTestServer(t)
	tr.Seed("ring:current", 101.7)

	rr := doJSON(t, s.Handler(), http.MethodGet, "/api/pv/current", nil)
	require.Equal(http.StatusOK, rr.Code)

	var got valueJSON
	require.NoError(json.Unmarshal(rr.Body.Bytes(), &got))
	require.Equal("current", got.Name)
	require.Equal("ring:current", got.Address)
	require.Equal(101.7, got.Value)

	rr = doJSON(t, s.Handler(), http.MethodGet, "/api/pv/nope", nil)
	require.Equal(http.StatusNotFound, rr.Code)
}

func TestServerWritePV(t *testing.T) {
	require := require.New(t)

	t.Run("Write", func(t *testing.T) {
		s, tr := newTestServer(t)
		rr := doJSON(t, s.Handler(), http.MethodPut, "/api/pv/current",
			writeRequest{Value: 99.5})
		require.Equal(http.StatusOK, rr.Code)

		var got writeResponse
		require.NoError(json.Unmarshal(rr.Body.Bytes(), &got))
		require.False(got.Skipped)
		require.Equal(99.5, tr.Value("ring:current"))
	})

	t.Run("PermitGatedWriteReportsSkip", func(t *testing.T) {
		s, tr := newTestServer(t)
		rr := doJSON(t, s.Handler(), http.MethodPut, "/api/pv/shutter",
			writeRequest{Value: 1})
		require.Equal(http.StatusOK, rr.Code)

		var got writeResponse
		require.NoError(json.Unmarshal(rr.Body.Bytes(), &got))
		require.True(got.Skipped)
		require.Equal(0, tr.PutCount("32idc:shutter"))
	})

	t.Run("CoercionFailure", func(t *testing.T) {
		s, _ := newTestServer(t)
		rr := doJSON(t, s.Handler(), http.MethodPut, "/api/pv/current",
			writeRequest{Value: "not a number"})
		require.Equal(http.StatusBadRequest, rr.Code)
	})

	t.Run("InvalidBody", func(t *testing.T) {
		s, _ := newTestServer(t)
		req := httptest.NewRequest(http.MethodPut, "/api/pv/current",
			bytes.NewBufferString("{"))
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, req)
		require.Equal(http.StatusBadRequest, rr.Code)
	})

	t.Run("UnknownBinding", func(t *testing.T) {
		s, _ := newTestServer(t)
		rr := doJSON(t, s.Handler(), http.MethodPut, "/api/pv/nope",
			writeRequest{Value: 1})
		require.Equal(http.StatusNotFound, rr.Code)
	})
}

func TestServerScanLog(t *testing.T) {
	require := require.New(t)

	rec, err := scanlog.Open(filepath.Join(t.TempDir(), "scans.sqlite3"))
	require.NoError(err)
	t.Cleanup(func() { _ = rec.Close() })

	started := time.Now()
	require.NoError(rec.BeginRun(scan.Run{ID: "run-1", Kind: "tomo", StartedAt: started}))
	require.NoError(rec.RecordPoint(scan.Point{
		RunID: "run-1", Seq: 1, Kind: scan.FrameDark, Frames: 5, At: started,
	}))

	tr := pv.NewSimTransport()
	ctrl, err := txm.New(monitorBindings(), txm.WithTransport(tr))
	require.NoError(err)
	t.Cleanup(func() { _ = ctrl.Close() })

	s := New(ctrl, WithScanLog(rec))

	rr := doJSON(t, s.Handler(), http.MethodGet, "/api/runs", nil)
	require.Equal(http.StatusOK, rr.Code)

	var runs []scanlog.RunRecord
	require.NoError(json.Unmarshal(rr.Body.Bytes(), &runs))
	require.Len(runs, 1)
	require.Equal("run-1", runs[0].ID)

	rr = doJSON(t, s.Handler(), http.MethodGet, "/api/runs/run-1/points", nil)
	require.Equal(http.StatusOK, rr.Code)

	var points []scan.Point
	require.NoError(json.Unmarshal(rr.Body.Bytes(), &points))
	require.Len(points, 1)
	require.Equal(scan.FrameDark, points[0].Kind)

	// without a recorder the endpoints are not mounted
	bare := New(ctrl)
	rr = doJSON(t, bare.Handler(), http.MethodGet, "/api/runs", nil)
	require.Equal(http.StatusNotFound, rr.Code)
}

func TestServerStartAndClose(t *testing.T) {
	require := require.New(t)

	s, _ := newTestServer(t)
	require.NoError(s.Start("127.0.0.1:0"))
	t.Cleanup(func() { _ = s.Close() })
	require.NotEmpty(s.Addr())

	resp, err := http.Get("http://" + s.Addr() + "/api/permit")
	require.NoError(err)
	defer resp.Body.Close()
	require.Equal(http.StatusOK, resp.StatusCode)
}
