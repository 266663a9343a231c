package inventory

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/labgig/labgig-crm/internal/shared"
)

// gatedRepo blocks ListProducts until released so a test can hold a summary
// load in flight.
type gatedRepo struct {
	*memoryRepo
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (r *gatedRepo) ListProducts(ctx context.Context, companyID int64) ([]Product, error) {
	r.once.Do(func() { close(r.entered) })
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.release:
	}
	return r.memoryRepo.ListProducts(ctx, companyID)
}

func testSession(t *testing.T, companyID string) *shared.Session {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	manager := shared.NewSessionManager(client, "test_session", "secret", time.Hour, false)
	sess, err := manager.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	sess.SetCompany(companyID)
	return sess
}

func TestStockSummarySharedLoadSurvivesCallerCancel(t *testing.T) {
	repo := &gatedRepo{
		memoryRepo: newMemoryRepo(),
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	seedProduct(repo.memoryRepo, 1, 1, 3, "Erlenmeyer Flask")

	h := &Handler{
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		service:   NewService(repo, nil, nil, nil, nil),
		validator: validator.New(),
	}
	sess := testSession(t, "1")

	newRequest := func(ctx context.Context) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/stock-summary", nil)
		return req.WithContext(shared.ContextWithSession(ctx, sess))
	}

	ctx1, cancel := context.WithCancel(context.Background())
	rec1 := httptest.NewRecorder()
	done1 := make(chan struct{})
	go func() {
		defer close(done1)
		h.stockSummary(rec1, newRequest(ctx1))
	}()
	<-repo.entered

	rec2 := httptest.NewRecorder()
	done2 := make(chan struct{})
	go func() {
		defer close(done2)
		h.stockSummary(rec2, newRequest(context.Background()))
	}()

	// Let the second request join the in-flight load, then cancel the
	// first caller before the load finishes.
	time.Sleep(20 * time.Millisecond)
	cancel()
	close(repo.release)
	<-done1
	<-done2

	require.Equal(t, http.StatusOK, rec1.Code)
	require.Equal(t, http.StatusOK, rec2.Code)
}
