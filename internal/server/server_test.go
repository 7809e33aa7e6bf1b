package server

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"projectmarket/internal/config"
	"projectmarket/internal/db"
	"projectmarket/internal/engine"
	"projectmarket/internal/metrics"
	"projectmarket/internal/migrate"
	marketsdk "projectmarket/sdk/go"
)

type testServer struct {
	URL    string
	Client *marketsdk.Client
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Path: filepath.Join(dir, "market.db")})
	require.NoError(t, err)
	_, err = migrate.Migrate(context.Background(), conn)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Auth.JWTSecret = "server-test-secret"
	cfg.Storage.UploadDir = filepath.Join(dir, "uploads")
	cfg.Storage.MaxUploadSize = "64KiB"
	e, err := engine.New(conn, cfg)
	require.NoError(t, err)
	e.Metrics = metrics.New()

	handler, err := New(Config{Engine: e, BasePath: "/api"})
	require.NoError(t, err)
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	t.Cleanup(func() {
		srv.Shutdown(context.Background())
		ln.Close()
		conn.Close()
	})
	url := "http://" + ln.Addr().String()
	return &testServer{URL: url, Client: marketsdk.New(url)}
}

// account registers a user and, when role is not empty, has admin grant it.
func (s *testServer) account(t *testing.T, admin *marketsdk.Client, name, role string) (*marketsdk.Client, marketsdk.User) {
	t.Helper()
	ctx := context.Background()
	sess, err := s.Client.Register(ctx, name, strings.ToLower(name)+"@example.com", "password")
	require.NoError(t, err)
	if role != "" {
		u, err := admin.SetRole(ctx, sess.User.ID, role)
		require.NoError(t, err)
		sess.User = u
	}
	return s.Client.WithToken(sess.Token), sess.User
}

func (s *testServer) admin(t *testing.T) *marketsdk.Client {
	t.Helper()
	sess, err := s.Client.Register(context.Background(), "Root", "root@example.com", "rootpass")
	require.NoError(t, err)
	require.Equal(t, "admin", sess.User.Role)
	return s.Client.WithToken(sess.Token)
}

func zipBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("README.md")
	require.NoError(t, err)
	_, err = w.Write([]byte("# delivered\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func doJSON(t *testing.T, method, url, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func requireAPIError(t *testing.T, err error, status int, code string) {
	t.Helper()
	var apiErr *marketsdk.APIError
	require.True(t, errors.As(err, &apiErr), "expected api error, got %v", err)
	assert.Equal(t, status, apiErr.StatusCode, apiErr.Body)
	assert.Equal(t, code, apiErr.Code, apiErr.Body)
}

func TestPublicRoutes(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	resp, body := doJSON(t, http.MethodGet, s.URL+"/api/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	n, err := s.Client.UserCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = s.Client.ListProjects(ctx)
	requireAPIError(t, err, http.StatusUnauthorized, "unauthenticated")

	_, err = s.Client.WithToken("not-a-token").Me(ctx)
	requireAPIError(t, err, http.StatusUnauthorized, "unauthenticated")

	resp, body = doJSON(t, http.MethodGet, s.URL+"/api/openapi.json", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "/api/projects/{id}/assign")
	assert.Contains(t, string(body), "bearerAuth")

	resp, _ = doJSON(t, http.MethodGet, s.URL+"/docs", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestOpenAPIServedConcurrently(t *testing.T) {
	s := newTestServer(t)
	docs := make([][]byte, 8)
	errs := make([]error, len(docs))
	var wg sync.WaitGroup
	for i := range docs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := http.Get(s.URL + "/api/openapi.json")
			if err != nil {
				errs[i] = err
				return
			}
			defer resp.Body.Close()
			docs[i], errs[i] = io.ReadAll(resp.Body)
		}(i)
	}
	wg.Wait()
	for i := range docs {
		require.NoError(t, errs[i])
		assert.Equal(t, docs[0], docs[i])
	}
	assert.Contains(t, string(docs[0]), "/api/submissions/{id}/review")
}

func TestRegisterAndLogin(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	admin := s.admin(t)

	sess, err := s.Client.Register(ctx, "Ada", "ADA@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "user", sess.User.Role)
	assert.Equal(t, "ada@example.com", sess.User.Email)

	_, err = s.Client.Register(ctx, "Ada again", "ada@example.com", "secret1")
	requireAPIError(t, err, http.StatusBadRequest, "conflict")

	_, err = s.Client.Register(ctx, "Short", "short@example.com", "123")
	requireAPIError(t, err, http.StatusBadRequest, "validation")

	_, err = s.Client.Login(ctx, "ada@example.com", "wrong-password")
	requireAPIError(t, err, http.StatusUnauthorized, "unauthenticated")

	sess, err = s.Client.Login(ctx, "ada@example.com", "secret1")
	require.NoError(t, err)
	me, err := s.Client.WithToken(sess.Token).Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, me.ID)

	resp, body := doJSON(t, http.MethodGet, s.URL+"/api/users/"+me.ID, sess.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, string(body), "password")

	users, err := admin.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	_, err = s.Client.WithToken(sess.Token).ListUsers(ctx)
	requireAPIError(t, err, http.StatusForbidden, "forbidden")

	n, err := s.Client.UserCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMarketplaceFlow(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	admin := s.admin(t)
	buyer, _ := s.account(t, admin, "Buyer", "buyer")
	solver, solverUser := s.account(t, admin, "Solver", "problem_solver")
	other, _ := s.account(t, admin, "Other", "problem_solver")

	budget := 500.0
	p, err := buyer.CreateProject(ctx, marketsdk.ProjectInput{
		Title: "Landing page", Description: "One page site", Budget: &budget, Skills: []string{"html"},
	})
	require.NoError(t, err)
	assert.Equal(t, "open", p.Status)

	_, err = solver.CreateRequest(ctx, p.ID, "I can do it")
	require.NoError(t, err)
	_, err = other.CreateRequest(ctx, p.ID, "me too")
	require.NoError(t, err)

	reqs, err := buyer.ListProjectRequests(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, reqs, 2)

	p, err = buyer.AssignProject(ctx, p.ID, solverUser.ID)
	require.NoError(t, err)
	assert.Equal(t, "assigned", p.Status)
	require.NotNil(t, p.AssignedTo)
	assert.Equal(t, solverUser.ID, *p.AssignedTo)

	mine, err := other.ListMyRequests(ctx)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "rejected", mine[0].Status)

	task, err := solver.CreateTask(ctx, marketsdk.TaskInput{ProjectID: p.ID, Title: "Write HTML", Priority: "high"})
	require.NoError(t, err)
	assert.Equal(t, "todo", task.Status)
	assert.Equal(t, "high", task.Metadata.Priority)

	p, err = buyer.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "in_progress", p.Status)

	task, err = solver.SetTaskStatus(ctx, task.ID, "in_progress")
	require.NoError(t, err)
	assert.Equal(t, "in_progress", task.Status)

	sub, err := solver.SubmitWork(ctx, task.ID, "first cut", "site.zip", bytes.NewReader(zipBytes(t)))
	require.NoError(t, err)
	assert.Equal(t, "pending", sub.Status)
	assert.Equal(t, p.ID, sub.ProjectID)
	assert.True(t, strings.HasPrefix(sub.FilePath, "/uploads/"))

	data, err := buyer.Download(ctx, sub.FilePath)
	require.NoError(t, err)
	assert.Equal(t, zipBytes(t)[:4], data[:4])

	subs, err := buyer.ListSubmissions(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, subs, 1)

	// the verdict field is "decision"
	resp, body := doJSON(t, http.MethodPatch, s.URL+"/api/submissions/"+sub.ID+"/review", buyer.BearerToken, map[string]any{"status": "accepted"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), `"code":"validation"`)

	reviewed, err := buyer.ReviewSubmission(ctx, sub.ID, "accepted", "looks good")
	require.NoError(t, err)
	assert.Equal(t, "accepted", reviewed.Status)

	tasks, err := buyer.ListTasks(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "completed", tasks[0].Status)

	p, err = buyer.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "completed", p.Status)

	evts, err := admin.Events(ctx, 100)
	require.NoError(t, err)
	types := map[string]bool{}
	for _, e := range evts {
		types[e.Type] = true
	}
	for _, want := range []string{"project.assigned", "project.started", "submission.reviewed", "task.completed", "project.completed"} {
		assert.True(t, types[want], "missing event %s", want)
	}

	_, err = buyer.Events(ctx, 10)
	requireAPIError(t, err, http.StatusForbidden, "forbidden")
}

func TestErrorStatuses(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	admin := s.admin(t)
	buyer, _ := s.account(t, admin, "Buyer", "buyer")
	rival, _ := s.account(t, admin, "Rival", "buyer")
	solver, _ := s.account(t, admin, "Solver", "problem_solver")

	_, err := solver.CreateProject(ctx, marketsdk.ProjectInput{Title: "x", Description: "y"})
	requireAPIError(t, err, http.StatusForbidden, "forbidden")

	p, err := buyer.CreateProject(ctx, marketsdk.ProjectInput{Title: "Logo", Description: "A logo"})
	require.NoError(t, err)

	_, err = rival.EditProject(ctx, p.ID, map[string]any{"title": "mine now"})
	requireAPIError(t, err, http.StatusNotFound, "not_found")

	_, err = buyer.GetProject(ctx, "missing")
	requireAPIError(t, err, http.StatusNotFound, "not_found")

	_, err = solver.CreateRequest(ctx, p.ID, "")
	require.NoError(t, err)
	_, err = solver.CreateRequest(ctx, p.ID, "")
	requireAPIError(t, err, http.StatusBadRequest, "conflict")

	_, err = solver.CreateTask(ctx, marketsdk.TaskInput{ProjectID: p.ID, Title: "too early"})
	requireAPIError(t, err, http.StatusBadRequest, "invalid_state")

	resp, body := doJSON(t, http.MethodPatch, s.URL+"/api/projects/"+p.ID+"/assign", buyer.BearerToken, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), `"code":"validation"`)

	edited, err := buyer.EditProject(ctx, p.ID, map[string]any{"budget": 250})
	require.NoError(t, err)
	require.NotNil(t, edited.Budget)
	assert.Equal(t, 250.0, *edited.Budget)

	cancelled, err := buyer.CancelProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "cancelled", cancelled.Status)
	_, err = buyer.CancelProject(ctx, p.ID)
	requireAPIError(t, err, http.StatusBadRequest, "invalid_state")
}

func TestSubmitRejectsNonArchive(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	admin := s.admin(t)
	buyer, _ := s.account(t, admin, "Buyer", "buyer")
	solver, solverUser := s.account(t, admin, "Solver", "problem_solver")

	p, err := buyer.CreateProject(ctx, marketsdk.ProjectInput{Title: "API", Description: "REST API"})
	require.NoError(t, err)
	_, err = solver.CreateRequest(ctx, p.ID, "")
	require.NoError(t, err)
	_, err = buyer.AssignProject(ctx, p.ID, solverUser.ID)
	require.NoError(t, err)
	task, err := solver.CreateTask(ctx, marketsdk.TaskInput{ProjectID: p.ID, Title: "Endpoints"})
	require.NoError(t, err)

	_, err = solver.SubmitWork(ctx, task.ID, "", "notes.txt", strings.NewReader("plain text"))
	requireAPIError(t, err, http.StatusBadRequest, "validation")

	_, err = solver.SubmitWork(ctx, task.ID, "", "fake.zip", strings.NewReader("not really a zip"))
	requireAPIError(t, err, http.StatusBadRequest, "validation")

	_, err = solver.SubmitWork(ctx, task.ID, "", "", nil)
	requireAPIError(t, err, http.StatusBadRequest, "validation")

	big := append(zipBytes(t), make([]byte, 70<<10)...)
	_, err = solver.SubmitWork(ctx, task.ID, "", "big.zip", bytes.NewReader(big))
	requireAPIError(t, err, http.StatusBadRequest, "validation")

	tasks, err := solver.ListTasks(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "todo", tasks[0].Status)
	subs, err := buyer.ListSubmissions(ctx, task.ID)
	require.NoError(t, err)
	assert.Empty(t, subs)

	_, err = buyer.SubmitWork(ctx, task.ID, "", "site.zip", bytes.NewReader(zipBytes(t)))
	requireAPIError(t, err, http.StatusForbidden, "forbidden")

	resp, _ := doJSON(t, http.MethodGet, s.URL+"/uploads/anything.zip", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	_, err := s.Client.UserCount(context.Background())
	require.NoError(t, err)

	for _, p := range []string{"/wp-admin", "/wp-login.php"} {
		resp, _ := doJSON(t, http.MethodGet, s.URL+p, "", nil)
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	}

	resp, body := doJSON(t, http.MethodGet, s.URL+"/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `projectmarket_http_requests_total{method="GET",route="/api/auth/user-count",status="200"} 1`)
	assert.Contains(t, string(body), `projectmarket_http_requests_total{method="GET",route="unmatched",status="404"} 2`)
	assert.NotContains(t, string(body), "wp-admin")
}
