package handlers_test

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"regexp"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tareas/internal/handlers"
	"tareas/internal/identity"
	"tareas/internal/identity/identitytest"
	"tareas/internal/middleware"
	"tareas/internal/services"
	"tareas/internal/store"
	"tareas/views"
)

// testApp wires the full application over the in-memory store and the
// fake identity provider.
type testApp struct {
	app      *fiber.App
	provider *identitytest.Provider
	docs     *store.MemoryStore
	tasks    *services.TaskService
}

func setupApp(t *testing.T) *testApp {
	t.Helper()

	provider := identitytest.NewProvider()
	t.Cleanup(provider.Close)

	gateway := identity.NewGateway("test-key", provider.URL())
	docs := store.NewMemoryStore()
	sessions := session.New()

	accountService := services.NewAccountService(gateway, docs, nil)
	taskService := services.NewTaskService(docs, nil)

	app := fiber.New(fiber.Config{
		Views: views.Engine(),
	})

	handlers.NewAuthHandler(accountService, sessions).RegisterRoutes(app)

	guarded := app.Group("", middleware.AuthRequired(sessions))
	handlers.NewDashboardHandler(accountService, sessions).RegisterRoutes(guarded)
	handlers.NewTaskHandler(taskService, sessions).RegisterRoutes(guarded)

	return &testApp{
		app:      app,
		provider: provider,
		docs:     docs,
		tasks:    taskService,
	}
}

// browser carries session cookies across requests, like a real client.
type browser struct {
	t       *testing.T
	app     *fiber.App
	cookies map[string]*http.Cookie
}

func newBrowser(t *testing.T, app *fiber.App) *browser {
	return &browser{t: t, app: app, cookies: make(map[string]*http.Cookie)}
}

func (b *browser) do(req *http.Request) *http.Response {
	b.t.Helper()

	for _, cookie := range b.cookies {
		req.AddCookie(cookie)
	}
	resp, err := b.app.Test(req, -1)
	require.NoError(b.t, err)
	for _, cookie := range resp.Cookies() {
		b.cookies[cookie.Name] = cookie
	}
	return resp
}

func (b *browser) get(path string) *http.Response {
	return b.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (b *browser) postForm(path string, form url.Values) *http.Response {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.do(req)
}

func (b *browser) login(email, password string) *http.Response {
	return b.postForm("/login/", url.Values{
		"email":    {email},
		"password": {password},
	})
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	return string(body)
}

func TestMain(m *testing.M) {
	log.SetOutput(io.Discard)
	code := m.Run()
	os.Exit(code)
}

var uidPattern = regexp.MustCompile(`UID: ([0-9a-fA-F-]+)`)

func TestRegisterThenLogin(t *testing.T) {
	ta := setupApp(t)
	b := newBrowser(t, ta.app)

	resp := b.postForm("/registro/", url.Values{
		"email":    {"nueva@example.com"},
		"password": {"password123"},
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body := readBody(t, resp)
	match := uidPattern.FindStringSubmatch(body)
	require.NotNil(t, match, "registration page should report the new UID")
	uid := match[1]

	// The profile document was written at registration time.
	fields, err := ta.docs.Get(context.Background(), store.CollectionProfiles, uid)
	require.NoError(t, err)
	assert.Equal(t, "learner", fields["rol"])

	resp = b.login("nueva@example.com", "password123")
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/dashboard/", resp.Header.Get("Location"))

	resp = b.get("/dashboard/")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body = readBody(t, resp)
	assert.Contains(t, body, uid, "dashboard should show the session's UID")
	assert.Contains(t, body, "nueva@example.com")
	assert.Contains(t, body, "learner")
}

func TestRegisterValidation(t *testing.T) {
	ta := setupApp(t)
	b := newBrowser(t, ta.app)

	resp := b.postForm("/registro/", url.Values{
		"email":    {"not-an-email"},
		"password": {"password123"},
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "Email")

	resp = b.postForm("/registro/", url.Values{
		"email":    {"short@example.com"},
		"password": {"abc"},
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "Password")
}

func TestLoginErrorMessages(t *testing.T) {
	ta := setupApp(t)
	ta.provider.Seed("known@example.com", "password123")

	cases := []struct {
		name       string
		forcedCode string
		message    string
	}{
		{"invalid credentials", "INVALID_LOGIN_CREDENTIALS", "password incorrect or email invalid"},
		{"email not found", "EMAIL_NOT_FOUND", "email not registered"},
		{"disabled", "USER_DISABLED", "account disabled by administrator"},
		{"throttled", "TOO_MANY_ATTEMPTS_TRY_LATER", "too many failed attempts, retry later"},
		{"unmapped", "BANANA_ERROR", "could not sign in, check your credentials"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ta.provider.ForceErrorCode(tc.forcedCode)
			defer ta.provider.ForceErrorCode("")

			b := newBrowser(t, ta.app)
			resp := b.login("known@example.com", "password123")
			assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
			assert.Contains(t, readBody(t, resp), tc.message)
		})
	}
}

func TestLoginPrecheckSkipsProvider(t *testing.T) {
	ta := setupApp(t)
	ta.provider.Seed("known@example.com", "password123")

	b := newBrowser(t, ta.app)
	resp := b.login("known@example.com", "password123")
	require.Equal(t, fiber.StatusFound, resp.StatusCode)

	// With a live session the provider is never contacted again, even
	// when it would reject the call.
	ta.provider.ForceErrorCode("TOO_MANY_ATTEMPTS_TRY_LATER")
	defer ta.provider.ForceErrorCode("")

	resp = b.get("/login/")
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/dashboard/", resp.Header.Get("Location"))

	resp = b.login("known@example.com", "password123")
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/dashboard/", resp.Header.Get("Location"))
}

func TestGuardedRoutesRedirectToLogin(t *testing.T) {
	ta := setupApp(t)

	guardedPaths := []string{
		"/dashboard/",
		"/tareas/",
		"/tareas/crear/",
		"/tareas/editar/some-id",
		"/tareas/eliminar/some-id",
	}
	for _, path := range guardedPaths {
		t.Run(path, func(t *testing.T) {
			b := newBrowser(t, ta.app)
			resp := b.get(path)
			assert.Equal(t, fiber.StatusFound, resp.StatusCode)
			assert.Equal(t, "/login/", resp.Header.Get("Location"))
		})
	}
}

func TestTaskRoundTrip(t *testing.T) {
	ta := setupApp(t)
	ta.provider.Seed("owner@example.com", "password123")

	b := newBrowser(t, ta.app)
	require.Equal(t, fiber.StatusFound, b.login("owner@example.com", "password123").StatusCode)

	resp := b.postForm("/tareas/crear/", url.Values{
		"titulo":      {"Buy milk"},
		"descripcion": {"two liters"},
	})
	require.Equal(t, fiber.StatusFound, resp.StatusCode)
	require.Equal(t, "/tareas/", resp.Header.Get("Location"))

	resp = b.get("/tareas/")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body := readBody(t, resp)
	assert.Contains(t, body, "Buy milk")
	assert.Contains(t, body, "Pending")
	assert.Contains(t, body, "task created")

	// Fetch the generated id to drive the edit form.
	uid := ownerUID(t, ta, "owner@example.com")
	tasks, err := ta.tasks.List(context.Background(), uid)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	taskID := tasks[0].ID

	resp = b.get("/tareas/editar/" + taskID)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "Buy milk")

	resp = b.postForm("/tareas/editar/"+taskID, url.Values{
		"titulo":      {"Buy milk"},
		"descripcion": {"two liters"},
		"estado":      {"Done"},
	})
	require.Equal(t, fiber.StatusFound, resp.StatusCode)

	resp = b.get("/tareas/")
	body = readBody(t, resp)
	assert.Contains(t, body, "Buy milk")
	assert.Contains(t, body, "Done")

	tasks, err = ta.tasks.List(context.Background(), uid)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.True(t, tasks[0].UpdatedAt.After(tasks[0].CreatedAt),
		"edit must stamp an update time after creation")

	resp = b.get("/tareas/eliminar/" + taskID)
	require.Equal(t, fiber.StatusFound, resp.StatusCode)

	resp = b.get("/tareas/")
	body = readBody(t, resp)
	assert.NotContains(t, body, "Buy milk")
	assert.Contains(t, body, "task deleted")
}

func TestEditRejectsOtherUsers(t *testing.T) {
	ta := setupApp(t)
	ta.provider.Seed("u1@example.com", "password123")
	ta.provider.Seed("u2@example.com", "password123")

	owner := newBrowser(t, ta.app)
	require.Equal(t, fiber.StatusFound, owner.login("u1@example.com", "password123").StatusCode)
	require.Equal(t, fiber.StatusFound, owner.postForm("/tareas/crear/", url.Values{
		"titulo": {"Private task"},
	}).StatusCode)

	uid := ownerUID(t, ta, "u1@example.com")
	tasks, err := ta.tasks.List(context.Background(), uid)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	taskID := tasks[0].ID

	intruder := newBrowser(t, ta.app)
	require.Equal(t, fiber.StatusFound, intruder.login("u2@example.com", "password123").StatusCode)

	resp := intruder.get("/tareas/editar/" + taskID)
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/tareas/", resp.Header.Get("Location"))

	resp = intruder.postForm("/tareas/editar/"+taskID, url.Values{
		"titulo": {"Hijacked"},
		"estado": {"Done"},
	})
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)

	resp = intruder.get("/tareas/")
	assert.Contains(t, readBody(t, resp), "you do not have permission to edit this task")

	// The task is untouched.
	task, err := ta.tasks.Get(context.Background(), taskID)
	require.NoError(t, err)
	assert.Equal(t, "Private task", task.Title)
	assert.Equal(t, "Pending", task.Status)

	// Delete, however, carries no ownership check today: the intruder's
	// request removes the task. Asserted as current behavior.
	resp = intruder.get("/tareas/eliminar/" + taskID)
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)

	_, err = ta.tasks.Get(context.Background(), taskID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestEditMissingTask(t *testing.T) {
	ta := setupApp(t)
	ta.provider.Seed("u1@example.com", "password123")

	b := newBrowser(t, ta.app)
	require.Equal(t, fiber.StatusFound, b.login("u1@example.com", "password123").StatusCode)

	resp := b.get("/tareas/editar/does-not-exist")
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/tareas/", resp.Header.Get("Location"))

	resp = b.get("/tareas/")
	assert.Contains(t, readBody(t, resp), "task not found")
}

func TestDashboardDefaultProfile(t *testing.T) {
	ta := setupApp(t)
	// Seeded directly at the provider: no profile document exists.
	ta.provider.Seed("ghost@example.com", "password123")

	b := newBrowser(t, ta.app)
	require.Equal(t, fiber.StatusFound, b.login("ghost@example.com", "password123").StatusCode)

	resp := b.get("/dashboard/")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body := readBody(t, resp)
	assert.Contains(t, body, "ghost@example.com")
	assert.Contains(t, body, "learner")
}

func TestLogoutClearsSession(t *testing.T) {
	ta := setupApp(t)
	ta.provider.Seed("bye@example.com", "password123")

	b := newBrowser(t, ta.app)
	require.Equal(t, fiber.StatusFound, b.login("bye@example.com", "password123").StatusCode)
	require.Equal(t, fiber.StatusOK, b.get("/dashboard/").StatusCode)

	resp := b.get("/logout/")
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login/", resp.Header.Get("Location"))

	resp = b.get("/login/")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "you have signed out")

	for _, path := range []string{"/dashboard/", "/tareas/"} {
		resp := b.get(path)
		assert.Equal(t, fiber.StatusFound, resp.StatusCode, path)
		assert.Equal(t, "/login/", resp.Header.Get("Location"), path)
	}

	// Logout is idempotent.
	resp = b.get("/logout/")
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
}

// ownerUID resolves the UID a seeded account ended up with by signing
// in against the fake provider directly.
func ownerUID(t *testing.T, ta *testApp, email string) string {
	t.Helper()

	gateway := identity.NewGateway("test-key", ta.provider.URL())
	creds, err := gateway.SignIn(context.Background(), email, "password123")
	require.NoError(t, err)
	return creds.UID
}
