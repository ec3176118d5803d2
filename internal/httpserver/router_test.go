package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"luxuryestates/internal/handler"
	"luxuryestates/pkg/circuitbreaker"
	"luxuryestates/pkg/rbac"
	"luxuryestates/pkg/trace"
	"luxuryestates/pkg/util"
)

const testSecret = "test-secret"

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type stubReplayer struct{ calls int }

func (s *stubReplayer) ReplayEvent(context.Context, int64) error { s.calls++; return nil }

func (s *stubReplayer) ReplayFailedEvents(context.Context, int) (int, error) { return 0, nil }

func newTestRouter(t *testing.T, db Pinger, replayer *stubReplayer) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zaptest.NewLogger(t)
	h := Handlers{
		Auth:     handler.NewAuthHandler(nil, log),
		Alert:    handler.NewAlertHandler(nil, log),
		Property: handler.NewPropertyHandler(nil, log),
		Review:   handler.NewReviewHandler(nil, log),
		Booking:  handler.NewBookingHandler(nil, log),
		Contact:  handler.NewContactHandler(nil, nil, log),
		Admin:    handler.NewAdminHandler(replayer, log),
	}
	return NewRouter(h, testSecret, Health{DB: db}, log).Engine
}

func bearer(t *testing.T, userID int64, role string) string {
	t.Helper()
	token, err := util.GenerateJWT(userID, role, testSecret)
	require.NoError(t, err)
	return "Bearer " + token
}

func TestHealthEndpoints(t *testing.T) {
	r := newTestRouter(t, stubPinger{}, &stubReplayer{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

type stubCircuit struct{ state circuitbreaker.State }

func (s stubCircuit) State() circuitbreaker.State { return s.state }

func TestReadyzReportsMailCircuit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewHealthRouter(Health{DB: stubPinger{}, Mail: stubCircuit{state: circuitbreaker.StateOpen}}).Engine

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ready","mail_circuit":"open"}`, w.Body.String())
}

func TestReadyzReportsDatabaseFailure(t *testing.T) {
	r := newTestRouter(t, stubPinger{err: errors.New("connection refused")}, &stubReplayer{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "db_not_ready")
}

func TestTraceIDIsEchoed(t *testing.T) {
	r := newTestRouter(t, stubPinger{}, &stubReplayer{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(trace.HeaderName, "trace-abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "trace-abc", w.Header().Get(trace.HeaderName))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Len(t, w.Header().Get(trace.HeaderName), 32)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	r := newTestRouter(t, stubPinger{}, &stubReplayer{})

	for _, path := range []string{"/me", "/contact-agent", "/bookings/checkout"} {
		method := http.MethodPost
		if path == "/me" {
			method = http.MethodGet
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminRoutesRequirePermission(t *testing.T) {
	replayer := &stubReplayer{}
	r := newTestRouter(t, stubPinger{}, replayer)

	req := httptest.NewRequest(http.MethodPost, "/admin/outbox/replay?id=1", nil)
	req.Header.Set("Authorization", bearer(t, 7, rbac.RoleUser))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Zero(t, replayer.calls)

	// 未知角色按普通用户处理
	req = httptest.NewRequest(http.MethodPost, "/admin/outbox/replay?id=1", nil)
	req.Header.Set("Authorization", bearer(t, 7, "superuser"))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/admin/outbox/replay?id=1", nil)
	req.Header.Set("Authorization", bearer(t, 1, rbac.RoleAdmin))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, replayer.calls)
}
