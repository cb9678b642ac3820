package settings

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/payrec/payrec/internal/platform/blob"
)

func newTestHandler(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := blob.New(t.TempDir())
	require.NoError(t, err)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(store, log, Journals{
		Purchase: []string{"ACHAT"},
		Bank:     []string{"BANQUE"},
	})

	r := chi.NewRouter()
	r.Route("/config", NewHandler(log, svc).MountRoutes)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestGetJournalsReturnsDefaults(t *testing.T) {
	srv := newTestHandler(t)

	resp, err := http.Get(srv.URL + "/config/journals")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var j Journals
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&j))
	require.Equal(t, []string{"ACHAT"}, j.Purchase)
	require.Equal(t, []string{"BANQUE"}, j.Bank)
}

func TestPutJournalsRoundTrip(t *testing.T) {
	srv := newTestHandler(t)

	body := `{"purchase":["HA"],"bank":["BQ1","BQ2"]}`
	req, err := http.NewRequest(http.MethodPut, srv.URL+"/config/journals", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp2, err := http.Get(srv.URL + "/config/journals")
	require.NoError(t, err)
	defer resp2.Body.Close()

	var j Journals
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&j))
	require.Equal(t, []string{"HA"}, j.Purchase)
	require.Equal(t, []string{"BQ1", "BQ2"}, j.Bank)
}

func TestPutJournalsRejectsEmpty(t *testing.T) {
	srv := newTestHandler(t)

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/config/journals", strings.NewReader(`{"purchase":[],"bank":[]}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPutJournalsRejectsMalformedBody(t *testing.T) {
	srv := newTestHandler(t)

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/config/journals", strings.NewReader(`{"purchase": 3}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
