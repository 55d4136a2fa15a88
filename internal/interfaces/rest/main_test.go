package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	infra "github.com/roundy-world/lesson-server/internal/infrastructure"
	"github.com/roundy-world/lesson-server/internal/infrastructure/driver"
	"github.com/roundy-world/lesson-server/internal/infrastructure/uuid"
	"github.com/roundy-world/lesson-server/internal/infrastructure/validate"
	"github.com/roundy-world/lesson-server/internal/lesson"
	"github.com/roundy-world/lesson-server/internal/sandbox"
	"github.com/roundy-world/lesson-server/internal/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig() *infra.AppConfig {
	option := new(infra.AppConfig)
	option.AppID = "roundy-test"
	option.Env = infra.EnvProduction
	option.SessionTimeout = 30 * time.Minute
	option.SessionRefresh = 5 * time.Minute
	option.RequestTimeout = 10 * time.Second
	option.Security.JWTMethod = "HS256"
	option.Security.JWTSecret = "secreto-de-pruebas"
	option.Security.TokenName = "roundy_token"
	option.Security.MaxLoginAttempts = 3
	option.Security.RetryTimeout = time.Minute
	option.Sandbox.MaxSourceLength = 20000
	option.DevOP.Metrics = true
	return option
}

func newTestApp(t *testing.T) *echo.Echo {
	t.Helper()
	ctx := context.Background()
	conn, err := driver.NewSQLiteConn(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(ctx) })
	require.NoError(t, driver.Migrate(ctx, conn))

	option := testConfig()
	kv := driver.NewMemoryKV()
	ids := uuid.NewNanoIDGenerator(16)

	catalog, err := lesson.LoadCatalog("", 10, validate.NewValidator("es"))
	require.NoError(t, err)
	opts := sandbox.DefaultOptions()
	opts.CallTimeout = 200 * time.Millisecond
	opts.SubmissionTimeout = time.Second

	progress := lesson.NewProgressKV(kv, "progress:", ids)
	return NewApp(conn, kv, option,
		user.NewUserUseCase(user.NewUserRepository(conn), ids, option.Security.MaxLoginAttempts, option.Security.RetryTimeout),
		lesson.NewLessonUseCase(catalog, progress, 50),
		lesson.NewLessonValidator(catalog, progress, sandbox.NewRunner(opts, nil), option.Sandbox.MaxSourceLength, nil),
		zap.NewNop(),
	)
}

func do(app *echo.Echo, method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func signIn(t *testing.T, app *echo.Echo) string {
	t.Helper()
	rec := do(app, http.MethodPost, "/api/v1/user/sign-up", "",
		`{"username":"roundy","email":"roundy@roundy.dev","password":"secreto123"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(app, http.MethodPost, "/api/v1/user/login", "", `{"username":"roundy","password":"secreto123"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body map[string]string
	decode(t, rec, &body)
	require.NotEmpty(t, body["token"])
	return body["token"]
}

func TestLessonValidate_Flow(t *testing.T) {
	app := newTestApp(t)
	token := signIn(t, app)

	rec := do(app, http.MethodPost, "/api/v1/lesson/validate", token,
		`{"lessonId":1,"codigo":"function sumar(a, b) { return a - b; }"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report map[string]interface{}
	decode(t, rec, &report)
	assert.Equal(t, false, report["esCorrecto"])
	first := report["output"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, -1.0, first["resultado"])
	assert.Equal(t, 5.0, first["esperado"])
	assert.Equal(t, false, first["pasada"])

	rec = do(app, http.MethodPost, "/api/v1/lesson/validate", token,
		`{"lessonId":1,"codigo":"function sumar(a, b) { return a + b; }"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &report)
	assert.Equal(t, true, report["esCorrecto"])
	assert.Equal(t, 10.0, report["puntosGanados"])
	assert.Equal(t, 2.0, report["siguienteLeccion"])

	rec = do(app, http.MethodGet, "/api/v1/lesson/progress", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var progress lesson.ProgressModel
	decode(t, rec, &progress)
	assert.Equal(t, []int{1}, progress.CompletedLessonIDs)
	assert.Equal(t, []int{1, 2}, progress.UnlockedLessonIDs)
	assert.Equal(t, 10, progress.Points)

	rec = do(app, http.MethodGet, "/api/v1/lesson/history", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var history []*lesson.HistoryEntry
	decode(t, rec, &history)
	require.Len(t, history, 1)
	assert.Equal(t, 1, history[0].LessonID)

	rec = do(app, http.MethodGet, "/api/v1/lesson/", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var lessons []*lesson.LessonView
	decode(t, rec, &lessons)
	require.True(t, len(lessons) >= 3)
	assert.True(t, lessons[0].Completed)
	assert.True(t, lessons[1].Unlocked)
	assert.False(t, lessons[2].Unlocked)

	rec = do(app, http.MethodGet, "/api/v1/lesson/1", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var detail lesson.LessonView
	decode(t, rec, &detail)
	assert.NotEmpty(t, detail.ReferenceSolution)

	rec = do(app, http.MethodGet, "/api/v1/lesson/2", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &detail)
	assert.Empty(t, detail.ReferenceSolution)
	assert.NotEmpty(t, detail.Template)
}

func TestLessonValidate_RequestErrors(t *testing.T) {
	app := newTestApp(t)
	token := signIn(t, app)

	cases := []struct {
		name string
		body string
		code int
	}{
		{"unknown lesson", `{"lessonId":999,"codigo":"function f() {}"}`, http.StatusNotFound},
		{"locked lesson", `{"lessonId":3,"codigo":"function maximo() {}"}`, http.StatusForbidden},
		{"empty submission", `{"lessonId":1,"codigo":"   "}`, http.StatusBadRequest},
		{"missing lesson id", `{"codigo":"function sumar() {}"}`, http.StatusBadRequest},
		{"malformed body", `{"lessonId":`, http.StatusBadRequest},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rec := do(app, http.MethodPost, "/api/v1/lesson/validate", token, c.body)
			assert.Equal(t, c.code, rec.Code, rec.Body.String())
			var body map[string]interface{}
			decode(t, rec, &body)
			assert.NotEmpty(t, body["error"])
		})
	}

	rec := do(app, http.MethodGet, "/api/v1/lesson/3", token, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = do(app, http.MethodGet, "/api/v1/lesson/abc", token, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLessonRoutes_RequireToken(t *testing.T) {
	app := newTestApp(t)

	rec := do(app, http.MethodPost, "/api/v1/lesson/validate", "", `{"lessonId":1,"codigo":"function sumar() {}"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(app, http.MethodGet, "/api/v1/lesson/progress", "no-es-un-token", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUser_SignOutRevokesToken(t *testing.T) {
	app := newTestApp(t)
	token := signIn(t, app)

	rec := do(app, http.MethodGet, "/api/v1/lesson/progress", token, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(app, http.MethodPut, "/api/v1/user/sign-out", token, "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(app, http.MethodGet, "/api/v1/lesson/progress", token, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUser_Endpoints(t *testing.T) {
	app := newTestApp(t)
	signIn(t, app)

	rec := do(app, http.MethodGet, "/api/v1/user/exists?username=roundy", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "true", strings.TrimSpace(rec.Body.String()))

	rec = do(app, http.MethodGet, "/api/v1/user/exists", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(app, http.MethodPost, "/api/v1/user/sign-up", "",
		`{"username":"roundy","email":"otro@roundy.dev","password":"secreto123"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(app, http.MethodPost, "/api/v1/user/sign-up", "", `{"username":"x","email":"no-email","password":"1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(app, http.MethodPost, "/api/v1/user/login", "", `{"username":"roundy","password":"incorrecto"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProbes(t *testing.T) {
	app := newTestApp(t)

	rec := do(app, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(app, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestValidateStream(t *testing.T) {
	app := newTestApp(t)
	token := signIn(t, app)

	server := httptest.NewServer(app)
	defer server.Close()

	header := http.Header{}
	header.Set(echo.HeaderAuthorization, "Bearer "+token)
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/ws/validate"
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"lessonId": 1,
		"codigo":   "function sumar(a, b) { return a + b; }",
	}))
	var report map[string]interface{}
	require.NoError(t, conn.ReadJSON(&report))
	assert.Equal(t, true, report["esCorrecto"])
	assert.Equal(t, 1.0, report["lessonId"])

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"lessonId": 5, "codigo": "function f() {}"}))
	var failure map[string]interface{}
	require.NoError(t, conn.ReadJSON(&failure))
	assert.Equal(t, 403.0, failure["code"])
	assert.NotEmpty(t, failure["error"])
}
