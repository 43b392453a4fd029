package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/pos_sync/middlewares"
	"github.com/mmdatafocus/pos_sync/syncengine"
)

type unreachableRemote struct{}

func (unreachableRemote) Ping(ctx context.Context) error { return errors.New("no route to host") }

func newSyncTestRouter() (*gin.Engine, *server) {
	gin.SetMode(gin.TestMode)
	s := &server{engine: &syncengine.Orchestrator{Remote: unreachableRemote{}}}
	r := gin.New()
	r.Use(middlewares.ScopeMiddleware())
	r.POST("/v1/sync/foreground", s.syncForeground)
	return r, s
}

func TestSyncForegroundRouteTriggersEngine(t *testing.T) {
	r, s := newSyncTestRouter()

	req := httptest.NewRequest(http.MethodPost, "/v1/sync/foreground", nil)
	req.Header.Set("X-Business-Id", "biz")
	req.Header.Set("X-User-Id", "u1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if got := s.engine.ActiveScope(); got.BusinessID != "biz" || got.UserID != "u1" {
		t.Fatalf("active scope = %+v", got)
	}
}

func TestSyncForegroundRouteRejectsMissingScope(t *testing.T) {
	r, _ := newSyncTestRouter()

	req := httptest.NewRequest(http.MethodPost, "/v1/sync/foreground", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}
