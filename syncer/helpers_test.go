package syncer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/ims_backend/config"
	"github.com/mmdatafocus/ims_backend/models"
	"github.com/sirupsen/logrus"
)

func newTestStore(t *testing.T) *models.Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := config.OpenDatabase(config.DriverSqlite, "file:sync_"+name+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := models.MigrateTable(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	store := models.NewStore(db, logger)
	var clock int64 = 1_000
	store.SetClock(func() int64 { return atomic.AddInt64(&clock, 1) })
	return store
}

// fakeServer is a gin-backed sync server recording what it receives.
type fakeServer struct {
	mu         sync.Mutex
	pull       ChangeSet
	pullStatus int
	pushStatus int
	sinces     []int64
	pushes     []ChangeSet
	headers    []http.Header
}

func newFakeServer(t *testing.T) (*fakeServer, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := &fakeServer{}
	r := gin.New()
	r.POST("/sync/pull", func(c *gin.Context) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.headers = append(f.headers, c.Request.Header.Clone())
		if f.pullStatus != 0 {
			c.JSON(f.pullStatus, gin.H{"error": "pull failed"})
			return
		}
		var req PullRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		f.sinces = append(f.sinces, req.Since)
		c.JSON(http.StatusOK, f.pull)
	})
	r.POST("/sync/push", func(c *gin.Context) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.headers = append(f.headers, c.Request.Header.Clone())
		if f.pushStatus != 0 {
			c.JSON(f.pushStatus, gin.H{"error": "push failed"})
			return
		}
		var payload ChangeSet
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		f.pushes = append(f.pushes, payload)
		versions := map[string]int64{}
		for _, p := range payload.Products {
			versions[VersionKey(models.EntityTypeProduct, p.ID)] = int64(100 + p.ID)
		}
		for _, tr := range payload.Transactions {
			versions[VersionKey(models.EntityTypeTransaction, tr.ID)] = int64(200 + tr.ID)
		}
		for _, a := range payload.Adjustments {
			versions[VersionKey(models.EntityTypeAdjustment, a.ID)] = int64(300 + a.ID)
		}
		c.JSON(http.StatusOK, PushResponse{Versions: versions})
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeServer) pushCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pushes)
}

func newTestCoordinator(t *testing.T, store *models.Store, url string, policy ConflictPolicy) *Coordinator {
	t.Helper()
	client, err := NewClient(ClientConfig{BaseURL: url, JWTSecret: "test-secret", SiteId: "site-test"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return NewCoordinator(store, client, policy, nil)
}

// stubTransport lets tests hook into the network calls.
type stubTransport struct {
	onPull func(ctx context.Context, since int64) (*ChangeSet, error)
	onPush func(ctx context.Context, payload *ChangeSet) (*PushResponse, error)
}

func (s *stubTransport) Pull(ctx context.Context, since int64) (*ChangeSet, error) {
	if s.onPull == nil {
		return &ChangeSet{}, nil
	}
	return s.onPull(ctx, since)
}

func (s *stubTransport) Push(ctx context.Context, payload *ChangeSet) (*PushResponse, error) {
	if s.onPush == nil {
		return &PushResponse{Versions: map[string]int64{}}, nil
	}
	return s.onPush(ctx, payload)
}

func addProduct(t *testing.T, store *models.Store, sku string, stock int) *models.Product {
	t.Helper()
	p, err := store.AddProduct(context.Background(), &models.NewProduct{Sku: sku, Name: "Product " + sku, CurrentStock: stock})
	if err != nil {
		t.Fatalf("AddProduct: %v", err)
	}
	return p
}

func metadata(t *testing.T, store *models.Store, entityType models.EntityType, id int) *models.SyncMetadata {
	t.Helper()
	meta, err := store.GetSyncMetadata(context.Background(), entityType, id)
	if err != nil {
		t.Fatalf("GetSyncMetadata: %v", err)
	}
	return meta
}
