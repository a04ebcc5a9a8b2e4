package handlers

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luckydraw/internal/auth"
	"luckydraw/internal/metrics"
	"luckydraw/internal/models"
	"luckydraw/internal/services"
	"luckydraw/internal/store/memory"
)

const (
	operatorEmail    = "ops@example.com"
	operatorPassword = "correct horse"
)

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return errors.New("connection refused") }

type env struct {
	router *gin.Engine
	store  *memory.Store
	token  string
}

func newEnv(t *testing.T, pool services.Pool) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := memory.New()
	reg := prometheus.NewRegistry()
	svc, err := services.NewLotteryService(st, "Party", pool, services.WithMetrics(metrics.New(reg)))
	require.NoError(t, err)

	hash, err := auth.HashPassword(operatorPassword)
	require.NoError(t, err)
	op, err := auth.NewOperator(operatorEmail, hash, "test-secret", time.Hour)
	require.NoError(t, err)

	h := NewHTTPHandler(svc, op, st, reg)
	r := gin.New()
	h.RegisterPublicRoutes(r)
	h.RegisterOperatorRoutes(r)

	e := &env{router: r, store: st}
	e.token = e.login(t)
	return e
}

func (e *env) do(method, path string, body any, token string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *env) login(t *testing.T) string {
	t.Helper()
	w := e.do(http.MethodPost, "/api/admin/login", gin.H{"email": operatorEmail, "password": operatorPassword}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.NotEmpty(t, out.Token)
	return out.Token
}

func (e *env) register(t *testing.T, name, email string) models.Participant {
	t.Helper()
	w := e.do(http.MethodPost, "/api/register", gin.H{"name": name, "email": email}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var p models.Participant
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	return p
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var out struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out.Code
}

func TestRegisterEndpoint(t *testing.T) {
	e := newEnv(t, services.Pool{Min: 10, Max: 12})

	p := e.register(t, "Ann", "ann@example.com")
	assert.GreaterOrEqual(t, p.Number, 10)
	assert.LessOrEqual(t, p.Number, 12)

	again := e.register(t, "Ann B.", "ANN@example.com")
	assert.Equal(t, p.ID, again.ID)
	assert.Equal(t, p.Number, again.Number)

	w := e.do(http.MethodPost, "/api/register", gin.H{"name": "", "email": "x@y.z"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, codeValidation, errorCode(t, w))

	w = e.do(http.MethodPost, "/api/register", gin.H{"name": "Bob", "email": "bob"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegisterPoolExhausted(t *testing.T) {
	e := newEnv(t, services.Pool{Min: 1, Max: 1})
	e.register(t, "Ann", "ann@example.com")

	w := e.do(http.MethodPost, "/api/register", gin.H{"name": "Bob", "email": "bob@example.com"}, "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, codePoolEmpty, errorCode(t, w))
}

func TestEventEndpoint(t *testing.T) {
	e := newEnv(t, services.Pool{Min: 5, Max: 50})

	w := e.do(http.MethodGet, "/api/event", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var info models.EventInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, models.EventInfo{Name: "Party", MinNumber: 5, MaxNumber: 50}, info)
}

func TestOperatorRoutesRequireToken(t *testing.T) {
	e := newEnv(t, services.DefaultPool)

	w := e.do(http.MethodPost, "/api/admin/draw", gin.H{"prize": "TV"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(http.MethodGet, "/api/admin/participants", nil, "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, codeUnauthorized, errorCode(t, w))

	w = e.do(http.MethodPost, "/api/admin/login", gin.H{"email": operatorEmail, "password": "wrong"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestOperatorDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	st := memory.New()
	svc, err := services.NewLotteryService(st, "Party", services.DefaultPool)
	require.NoError(t, err)

	r := gin.New()
	h := NewHTTPHandler(svc, nil, st, nil)
	h.RegisterPublicRoutes(r)
	h.RegisterOperatorRoutes(r)

	for _, path := range []string{"/api/admin/login", "/api/admin/draw"} {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{}`))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)
	}
}

func TestDrawFlow(t *testing.T) {
	e := newEnv(t, services.Pool{Min: 1, Max: 3})
	ann := e.register(t, "Ann", "ann@example.com")
	bob := e.register(t, "Bob", "bob@example.com")

	w := e.do(http.MethodPost, "/api/admin/draw", gin.H{"prize": "TV"}, e.token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var first models.Winner
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	assert.Equal(t, "TV", first.Prize)
	assert.Contains(t, []int{ann.Number, bob.Number}, first.Number)

	w = e.do(http.MethodGet, "/api/admin/available", nil, e.token)
	require.Equal(t, http.StatusOK, w.Code)
	var avail struct {
		Numbers []int `json:"numbers"`
		Count   int   `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &avail))
	assert.Equal(t, 1, avail.Count)
	assert.NotContains(t, avail.Numbers, first.Number)

	w = e.do(http.MethodPost, "/api/admin/draw", gin.H{"prize": "Mug"}, e.token)
	require.Equal(t, http.StatusCreated, w.Code)

	w = e.do(http.MethodPost, "/api/admin/draw", gin.H{"prize": "Pen"}, e.token)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = e.do(http.MethodGet, "/api/winners", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var winners []models.Winner
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &winners))
	require.Len(t, winners, 2)
	assert.Equal(t, "Mug", winners[0].Prize)

	w = e.do(http.MethodGet, "/api/admin/stats", nil, e.token)
	require.Equal(t, http.StatusOK, w.Code)
	var stats models.DrawStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.Participants)
	assert.Equal(t, 2, stats.Winners)
	assert.Equal(t, 0, stats.Available)
	assert.Equal(t, 3, stats.PoolSize)
}

func TestFindParticipant(t *testing.T) {
	e := newEnv(t, services.DefaultPool)
	p := e.register(t, "Ann", "ann@example.com")

	w := e.do(http.MethodGet, "/api/admin/participants/"+strconv.Itoa(p.Number), nil, e.token)
	require.Equal(t, http.StatusOK, w.Code)
	var got models.Participant
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, p.ID, got.ID)

	w = e.do(http.MethodGet, "/api/admin/participants/"+strconv.Itoa(p.Number%999+1), nil, e.token)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(http.MethodGet, "/api/admin/participants/abc", nil, e.token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(http.MethodGet, "/api/admin/participants", nil, e.token)
	require.Equal(t, http.StatusOK, w.Code)
	var all []models.Participant
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &all))
	assert.Len(t, all, 1)
}

func TestDeleteEndpoints(t *testing.T) {
	e := newEnv(t, services.Pool{Min: 1, Max: 5})
	e.register(t, "Ann", "ann@example.com")
	e.register(t, "Bob", "bob@example.com")

	w := e.do(http.MethodPost, "/api/admin/draw", gin.H{"prize": "TV"}, e.token)
	require.Equal(t, http.StatusCreated, w.Code)
	var winner models.Winner
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &winner))

	w = e.do(http.MethodDelete, "/api/admin/winners/"+winner.ID, nil, e.token)
	assert.Equal(t, http.StatusNoContent, w.Code)
	winners, err := e.store.ListWinners(context.Background())
	require.NoError(t, err)
	assert.Empty(t, winners)

	w = e.do(http.MethodDelete, "/api/admin/winners", nil, e.token)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = e.do(http.MethodDelete, "/api/admin/participants", nil, e.token)
	assert.Equal(t, http.StatusNoContent, w.Code)
	participants, err := e.store.ListParticipants(context.Background())
	require.NoError(t, err)
	assert.Empty(t, participants)

	e.register(t, "Cid", "cid@example.com")
	w = e.do(http.MethodDelete, "/api/admin/all", nil, e.token)
	assert.Equal(t, http.StatusNoContent, w.Code)
	participants, err = e.store.ListParticipants(context.Background())
	require.NoError(t, err)
	assert.Empty(t, participants)
}

func TestExportWinnersCSV(t *testing.T) {
	e := newEnv(t, services.Pool{Min: 1, Max: 5})
	ann := e.register(t, "Ann, Jr.", "ann@example.com")
	w := e.do(http.MethodPost, "/api/admin/draw", gin.H{"prize": "TV"}, e.token)
	require.Equal(t, http.StatusCreated, w.Code)

	w = e.do(http.MethodGet, "/api/admin/winners.csv", nil, e.token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))

	body := w.Body.String()
	require.True(t, strings.HasPrefix(body, "\xef\xbb\xbf"))
	rows, err := csv.NewReader(strings.NewReader(strings.TrimPrefix(body, "\xef\xbb\xbf"))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Number", rows[0][0])
	assert.Equal(t, strconv.Itoa(ann.Number), rows[1][0])
	assert.Equal(t, "Ann, Jr.", rows[1][2])
	assert.Equal(t, "TV", rows[1][3])
}

func TestHealthAndMetrics(t *testing.T) {
	e := newEnv(t, services.DefaultPool)
	e.register(t, "Ann", "ann@example.com")

	w := e.do(http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.do(http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "luckydraw_registrations_total 1")

	gin.SetMode(gin.TestMode)
	svc, err := services.NewLotteryService(memory.New(), "Party", services.DefaultPool)
	require.NoError(t, err)
	r := gin.New()
	NewHTTPHandler(svc, nil, downPinger{}, nil).RegisterPublicRoutes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
