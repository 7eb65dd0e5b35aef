package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iykyk-syn/bboard/board"
	"github.com/iykyk-syn/bboard/crypto/ed25519"
	"github.com/iykyk-syn/bboard/metrics"
	"github.com/iykyk-syn/bboard/replica"
	"github.com/iykyk-syn/bboard/store"
	"github.com/iykyk-syn/bboard/wire"
)

func TestRouter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	t.Cleanup(cancel)

	reg := prometheus.NewRegistry()
	r := replica.New(store.NewMemLog(), replica.Local, replica.WithMetrics(metrics.New(reg)))
	pub, priv, err := ed25519.GenKeys()
	require.NoError(t, err)

	reg1, err := wire.NewRegisterRequest(priv)
	require.NoError(t, err)
	require.NoError(t, r.Register(ctx, reg1))
	for i := uint64(1); i <= 3; i++ {
		post, err := wire.NewPostRequest(priv, board.GeneralID, i, "general")
		require.NoError(t, err)
		_, err = r.PostGeneral(ctx, post)
		require.NoError(t, err)
	}

	handler, err := NewHTTPHandler(Dependencies{Replica: r, Index: 1, Gatherer: reg})
	require.NoError(t, err)

	rec := serve(t, handler, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	var health healthPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, healthPayload{Status: "ok", Replica: 1, Users: 1, Announcements: 3}, health)

	rec = serve(t, handler, "/v1/general?count=2")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []board.Announcement
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.EqualValues(t, 2, list[0].Sequence)

	rec = serve(t, handler, "/v1/users/"+pub.String())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	other, _, err := ed25519.GenKeys()
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, serve(t, handler, "/v1/users/"+other.String()).Code)
	assert.Equal(t, http.StatusBadRequest, serve(t, handler, "/v1/users/zz").Code)
	assert.Equal(t, http.StatusBadRequest, serve(t, handler, "/v1/general?count=-1").Code)
	assert.Equal(t, http.StatusBadRequest, serve(t, handler, "/v1/general?count=many").Code)

	rec = serve(t, handler, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "bboard_announcements 3"))
}

func TestMissingReplica(t *testing.T) {
	_, err := NewHTTPHandler(Dependencies{})
	assert.ErrorIs(t, err, errMissingReplica)
}

func serve(t *testing.T, handler http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}
