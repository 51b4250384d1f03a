package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"usertasks/internal/auth"
	"usertasks/internal/cache"
	"usertasks/internal/config"
	"usertasks/internal/db/dbtest"
	apperrors "usertasks/internal/errors"
	"usertasks/internal/handler"
	"usertasks/internal/model"
	"usertasks/internal/repository"
	"usertasks/internal/service"
)

type testServer struct {
	e     *echo.Echo
	db    *gorm.DB
	redis *miniredis.Miniredis
	jwt   *auth.JWTService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	gormDB := dbtest.New(t)
	mr := miniredis.RunT(t)
	cacheClient := cache.New(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = cacheClient.Close() })

	cfg := &config.Config{LogLevel: "off"}
	hasher := auth.NewPasswordHasher(bcrypt.MinCost)
	jwtService := auth.NewJWTService(auth.TokenConfig{
		Secret:   "router-test-secret",
		Issuer:   "usertasks",
		Audience: "usertasks-clients",
		Expiry:   time.Hour,
	})
	store := repository.NewStore(gormDB)

	authService := service.NewAuthService(store.Users(), hasher, jwtService, auth.NewTokenStore(cacheClient))
	userService := service.NewUserService(store, hasher)
	taskService := service.NewTaskService(store)

	e := echo.New()
	Register(e, cfg, authService,
		handler.NewAuthHandler(authService),
		handler.NewUserHandler(userService),
		handler.NewTaskHandler(taskService),
	)
	return &testServer{e: e, db: gormDB, redis: mr, jwt: jwtService}
}

func (s *testServer) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
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
	s.e.ServeHTTP(rec, req)
	return rec
}

// registerAndLogin returns the new user's id and a bearer token.
func (s *testServer) registerAndLogin(t *testing.T, email string) (uint, string) {
	t.Helper()
	creds := `{"email":"` + email + `","password":"secret"}`

	rec := s.do(t, http.MethodPost, "/api/auth/register", creds, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/auth/login", creds, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp handler.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	claims, err := s.jwt.ValidateToken(resp.Token)
	require.NoError(t, err)
	id, err := claims.UserID()
	require.NoError(t, err)
	return id, resp.Token
}

func (s *testServer) createUser(t *testing.T, username, email string) model.User {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/users",
		`{"username":"`+username+`","email":"`+email+`","password":"pw"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var u model.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &u))
	return u
}

func (s *testServer) createTask(t *testing.T, title, desc string, assignee uint, due string) model.Task {
	t.Helper()
	body := `{"title":"` + title + `","description":"` + desc + `","assigneeId":` +
		strconv.FormatUint(uint64(assignee), 10) + `,"dueDate":"` + due + `"}`
	rec := s.do(t, http.MethodPost, "/api/tasks", body, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var task model.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &task))
	return task
}

func decodeTasks(t *testing.T, rec *httptest.ResponseRecorder) []model.Task {
	t.Helper()
	var tasks []model.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tasks))
	return tasks
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apperrors.ErrorResponse {
	t.Helper()
	var resp apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func titles(tasks []model.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, task.Title)
	}
	return out
}

func TestRegister(t *testing.T) {
	s := newTestServer(t)
	creds := `{"email":"a@x.io","password":"p"}`

	rec := s.do(t, http.MethodPost, "/api/auth/register", creds, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "User registered successfully.", rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/auth/register", creds, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "USER_ALREADY_EXISTS", decodeError(t, rec).Code)

	var count int64
	require.NoError(t, s.db.Model(&model.User{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	var stored model.User
	require.NoError(t, s.db.First(&stored).Error)
	assert.Equal(t, "a@x.io", stored.Username)
	assert.NotEqual(t, "p", stored.PasswordHash)
}

func TestRegister_MissingFields(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/auth/register", `{"email":"","password":"p"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/auth/register", `{not json`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin(t *testing.T) {
	s := newTestServer(t)
	id, token := s.registerAndLogin(t, "a@x.io")

	claims, err := s.jwt.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "a@x.io", claims.Email)
	assert.Equal(t, "a@x.io", claims.Name)
	assert.Equal(t, strconv.FormatUint(uint64(id), 10), claims.Subject)

	rec := s.do(t, http.MethodPost, "/api/auth/login", `{"email":"a@x.io","password":"wrong"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", decodeError(t, rec).Code)

	rec = s.do(t, http.MethodPost, "/api/auth/login", `{"email":"nobody@x.io","password":"secret"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMeAndLogout(t *testing.T) {
	s := newTestServer(t)
	_, token := s.registerAndLogin(t, "a@x.io")

	rec := s.do(t, http.MethodGet, "/api/me", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var me struct {
		TokenClaims map[string]interface{} `json:"token_claims"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, "a@x.io", me.TokenClaims["email"])

	rec = s.do(t, http.MethodPost, "/api/auth/logout", "", token)
	require.Equal(t, http.StatusOK, rec.Code)

	claims, err := s.jwt.ValidateToken(token)
	require.NoError(t, err)
	assert.True(t, s.redis.Exists("revoked:access_token:"+claims.ID))

	rec = s.do(t, http.MethodGet, "/api/me", "", token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_TOKEN", decodeError(t, rec).Code)
}

func TestProtectedRoutes_RequireToken(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/tasks", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "MISSING_TOKEN", decodeError(t, rec).Code)

	rec = s.do(t, http.MethodGet, "/api/tasks", "", "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_TOKEN", decodeError(t, rec).Code)

	rec = s.do(t, http.MethodDelete, "/api/users/1", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUsers_CRUD(t *testing.T) {
	s := newTestServer(t)
	u := s.createUser(t, "alice", "alice@x.io")

	rec := s.do(t, http.MethodGet, "/api/users/"+strconv.FormatUint(uint64(u.ID), 10), "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = s.do(t, http.MethodPost, "/api/users", `{"username":"dup","email":"alice@x.io","password":"pw"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/users", `{"username":"","email":"bad"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	path := "/api/users/" + strconv.FormatUint(uint64(u.ID), 10)
	rec = s.do(t, http.MethodPut, path, `{"username":"alice2","email":"alice2@x.io"}`, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	var stored model.User
	require.NoError(t, s.db.First(&stored, u.ID).Error)
	assert.Equal(t, "alice2", stored.Username)
	assert.Equal(t, "alice2@x.io", stored.Email)

	rec = s.do(t, http.MethodPut, "/api/users/999", `{"username":"x","email":"x@x.io"}`, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/users/abc", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/users", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var users []model.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
	assert.Len(t, users, 1)
}

func TestUsers_DeleteOnlySelf(t *testing.T) {
	s := newTestServer(t)
	aliceID, aliceToken := s.registerAndLogin(t, "alice@x.io")
	bobID, _ := s.registerAndLogin(t, "bob@x.io")
	alicePath := "/api/users/" + strconv.FormatUint(uint64(aliceID), 10)
	bobPath := "/api/users/" + strconv.FormatUint(uint64(bobID), 10)

	rec := s.do(t, http.MethodDelete, bobPath, "", aliceToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodGet, bobPath+"/tasks", "", aliceToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodDelete, alicePath, "", aliceToken)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, alicePath, "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "USER_NOT_FOUND", decodeError(t, rec).Code)
}

func TestUsers_ListOwnTasks(t *testing.T) {
	s := newTestServer(t)
	id, token := s.registerAndLogin(t, "alice@x.io")
	path := "/api/users/" + strconv.FormatUint(uint64(id), 10) + "/tasks"

	rec := s.do(t, http.MethodGet, path, "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	s.createTask(t, "mine", "", id, "2099-01-01")
	rec = s.do(t, http.MethodGet, path, "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"mine"}, titles(decodeTasks(t, rec)))
}

func TestTasks_Create(t *testing.T) {
	s := newTestServer(t)
	u := s.createUser(t, "u1", "u1@x.io")

	task := s.createTask(t, "Write report", "quarterly", u.ID, "2099-01-01")
	assert.NotZero(t, task.ID)
	require.NotNil(t, task.Assignee)
	assert.Equal(t, "u1", task.Assignee.Username)
	assert.Equal(t, time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC), task.DueDate.UTC())

	rec := s.do(t, http.MethodGet, "/api/tasks/"+strconv.FormatUint(uint64(task.ID), 10), "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"username":"u1"`)
}

func TestTasks_CreateRejectsUnknownAssignee(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/tasks",
		`{"title":"T","assigneeId":42,"dueDate":"2099-01-01"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ASSIGNEE_NOT_FOUND", decodeError(t, rec).Code)

	var count int64
	require.NoError(t, s.db.Model(&model.Task{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestTasks_CreateValidation(t *testing.T) {
	s := newTestServer(t)
	u := s.createUser(t, "u1", "u1@x.io")
	assignee := strconv.FormatUint(uint64(u.ID), 10)

	cases := map[string]string{
		"missing title":    `{"assigneeId":` + assignee + `,"dueDate":"2099-01-01"}`,
		"missing due date": `{"title":"T","assigneeId":` + assignee + `}`,
		"bad due date":     `{"title":"T","assigneeId":` + assignee + `,"dueDate":"tomorrow"}`,
		"blank title":      `{"title":"   ","assigneeId":` + assignee + `,"dueDate":"2099-01-01"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/tasks", body, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestTasks_UpdateAndDelete(t *testing.T) {
	s := newTestServer(t)
	u1 := s.createUser(t, "u1", "u1@x.io")
	u2 := s.createUser(t, "u2", "u2@x.io")
	task := s.createTask(t, "Old", "old", u1.ID, "2099-01-01")
	path := "/api/tasks/" + strconv.FormatUint(uint64(task.ID), 10)

	rec := s.do(t, http.MethodPut, path,
		`{"title":"New","assigneeId":`+strconv.FormatUint(uint64(u2.ID), 10)+`,"dueDate":"2098-05-05"}`, "")
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, path, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got model.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "New", got.Title)
	assert.Empty(t, got.Description)
	assert.Equal(t, u2.ID, got.AssigneeID)

	rec = s.do(t, http.MethodPut, path, `{"title":"New","assigneeId":999,"dueDate":"2098-05-05"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/tasks/999",
		`{"title":"X","assigneeId":`+strconv.FormatUint(uint64(u1.ID), 10)+`,"dueDate":"2098-05-05"}`, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodDelete, path, "", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(t, http.MethodDelete, path, "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "TASK_NOT_FOUND", decodeError(t, rec).Code)
}

func TestTasks_Queries(t *testing.T) {
	s := newTestServer(t)
	_, token := s.registerAndLogin(t, "viewer@x.io")
	zed := s.createUser(t, "zed", "zed@x.io")
	amy := s.createUser(t, "amy", "amy@x.io")

	s.createTask(t, "Pay invoice", "vendor", zed.ID, "2000-03-01")
	s.createTask(t, "Buy milk", "groceries", amy.ID, "2099-06-15T09:30:00Z")
	s.createTask(t, "Call bank", "about the invoice", amy.ID, "2099-06-15T18:00:00Z")
	s.createTask(t, "Archive", "", zed.ID, "2099-07-01")

	rec := s.do(t, http.MethodGet, "/api/tasks", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	all := decodeTasks(t, rec)
	assert.Len(t, all, 4)

	rec = s.do(t, http.MethodGet, "/api/tasks/expired", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	expired := decodeTasks(t, rec)
	rec = s.do(t, http.MethodGet, "/api/tasks/active", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	active := decodeTasks(t, rec)
	assert.Equal(t, []string{"Pay invoice"}, titles(expired))
	assert.Len(t, active, 3)
	assert.Equal(t, len(all), len(expired)+len(active))

	rec = s.do(t, http.MethodGet, "/api/tasks/byuser/"+strconv.FormatUint(uint64(amy.ID), 10), "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.ElementsMatch(t, []string{"Buy milk", "Call bank"}, titles(decodeTasks(t, rec)))

	rec = s.do(t, http.MethodGet, "/api/tasks/byuser/999", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/tasks/bydate/2099-06-15", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.ElementsMatch(t, []string{"Buy milk", "Call bank"}, titles(decodeTasks(t, rec)))

	rec = s.do(t, http.MethodGet, "/api/tasks/bydate/June-15", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/tasks/search?keyword=INVOICE&sortBy=title&order=desc", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"Pay invoice", "Call bank"}, titles(decodeTasks(t, rec)))

	rec = s.do(t, http.MethodGet, "/api/tasks/search?sortBy=assignee", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	byAssignee := decodeTasks(t, rec)
	require.Len(t, byAssignee, 4)
	assert.Equal(t, "amy", byAssignee[0].Assignee.Username)
	assert.Equal(t, "zed", byAssignee[3].Assignee.Username)

	rec = s.do(t, http.MethodGet, "/api/tasks/search?sortBy=bogus", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"Pay invoice", "Buy milk", "Call bank", "Archive"}, titles(decodeTasks(t, rec)))
}

func TestTasks_OrphanedAfterAssigneeDelete(t *testing.T) {
	s := newTestServer(t)
	id, token := s.registerAndLogin(t, "alice@x.io")
	task := s.createTask(t, "Left behind", "", id, "2099-01-01")

	rec := s.do(t, http.MethodDelete, "/api/users/"+strconv.FormatUint(uint64(id), 10), "", token)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/tasks/"+strconv.FormatUint(uint64(task.ID), 10), "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got model.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, id, got.AssigneeID)
	assert.Nil(t, got.Assignee)
}

func TestOperationalEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	s.do(t, http.MethodGet, "/api/users", "", "")
	rec = s.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `usertasks_http_requests_total{method="GET",route="/api/users",status="200"}`)

	rec = s.do(t, http.MethodGet, "/swagger/doc.json", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/tasks/search")
}

func TestLogLevel(t *testing.T) {
	assert.Equal(t, log.DEBUG, logLevel("debug"))
	assert.Equal(t, log.ERROR, logLevel("ERROR"))
	assert.Equal(t, log.OFF, logLevel("off"))
	assert.Equal(t, log.INFO, logLevel(""))
}

func TestOverlongPasswordIsRejected(t *testing.T) {
	s := newTestServer(t)
	ascii := strings.Repeat("a", 73)
	// 80 bytes but only 40 characters, so it gets past the DTO rule.
	multibyte := strings.Repeat("é", 40)

	rec := s.do(t, http.MethodPost, "/api/auth/register", `{"email":"a@x.io","password":"`+ascii+`"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeError(t, rec).Code)

	rec = s.do(t, http.MethodPost, "/api/auth/register", `{"email":"a@x.io","password":"`+multibyte+`"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "PASSWORD_TOO_LONG", decodeError(t, rec).Code)

	rec = s.do(t, http.MethodPost, "/api/users", `{"username":"u","email":"u@x.io","password":"`+ascii+`"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/users", `{"username":"u","email":"u@x.io","password":"`+multibyte+`"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "PASSWORD_TOO_LONG", decodeError(t, rec).Code)

	u := s.createUser(t, "u", "u@x.io")
	rec = s.do(t, http.MethodPut, "/api/users/"+strconv.FormatUint(uint64(u.ID), 10),
		`{"username":"u","email":"u@x.io","password":"`+multibyte+`"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "PASSWORD_TOO_LONG", decodeError(t, rec).Code)

	var count int64
	require.NoError(t, s.db.Model(&model.User{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}
