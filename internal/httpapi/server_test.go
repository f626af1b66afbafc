package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prudhvinik1/floorsync/internal/connectivity"
	"github.com/prudhvinik1/floorsync/internal/database"
	"github.com/prudhvinik1/floorsync/internal/engine"
	"github.com/prudhvinik1/floorsync/internal/localstore"
	"github.com/prudhvinik1/floorsync/internal/models"
	"github.com/prudhvinik1/floorsync/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRemote struct{}

func (stubRemote) Save(ctx context.Context, table models.Table, rec models.Record, op models.OpKind) error {
	return nil
}

func (stubRemote) LoadAll(ctx context.Context, table models.Table) ([]models.Record, error) {
	return nil, nil
}

type stubProber struct{}

func (stubProber) Probe(ctx context.Context) error { return nil }

func newTestServer(t *testing.T) (*Server, *queue.Queue) {
	t.Helper()
	db, err := database.NewBadgerInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	syncQueue := queue.New(db, nil)
	eng := engine.New(engine.Params{
		Store:    localstore.New(db, nil),
		Queue:    syncQueue,
		Remote:   stubRemote{},
		Online:   func() bool { return false },
		DeviceID: "device-1",
	})
	monitor := connectivity.New(stubProber{}, time.Minute, 10, connectivity.Hooks{}, nil)

	return New(eng, monitor, "device-1", nil), syncQueue
}

func TestServer_Health(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestServer_Status(t *testing.T) {
	server, syncQueue := newTestServer(t)

	require.NoError(t, syncQueue.Enqueue(models.SyncOperation{
		ID:       "op-1",
		Op:       models.OpCreate,
		Table:    models.TableTasks,
		RecordID: "task-1",
		Priority: models.PriorityNormal,
	}))

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var status statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "device-1", status.DeviceID)
	assert.Equal(t, 1, status.QueueDepth)
	assert.Equal(t, models.ConnUnknown, status.Connectivity.State, "monitor not started yet")
}

func TestServer_Resync(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/resync", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
}
