package marketsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal project marketplace HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		BasePath:   "/api",
		Timeout:    10 * time.Second,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// WithToken returns a copy of c authenticating as token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.BearerToken = token
	return &cp
}

type Profile struct {
	Bio        string   `json:"bio,omitempty"`
	Skills     []string `json:"skills,omitempty"`
	Experience string   `json:"experience,omitempty"`
	Portfolio  string   `json:"portfolio,omitempty"`
}

type User struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Email     string   `json:"email"`
	Role      string   `json:"role"`
	Profile   *Profile `json:"profile,omitempty"`
	CreatedAt string   `json:"created_at"`
}

// Session is returned by Register and Login.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      User      `json:"user"`
}

type Project struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Budget      *float64 `json:"budget,omitempty"`
	Deadline    *string  `json:"deadline,omitempty"`
	Skills      []string `json:"skills"`
	Status      string   `json:"status"`
	BuyerID     string   `json:"buyer_id"`
	AssignedTo  *string  `json:"assigned_to,omitempty"`
	Attachments []string `json:"attachments"`
}

// ProjectInput is the CreateProject body; empty fields are omitted.
type ProjectInput struct {
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Budget      *float64 `json:"budget,omitempty"`
	Deadline    *string  `json:"deadline,omitempty"`
	Skills      []string `json:"skills,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
}

type Request struct {
	ID              string `json:"id"`
	ProjectID       string `json:"project_id"`
	ProblemSolverID string `json:"problem_solver_id"`
	Message         string `json:"message,omitempty"`
	Status          string `json:"status"`
}

type TaskMetadata struct {
	Priority string   `json:"priority"`
	Tags     []string `json:"tags"`
	Notes    string   `json:"notes,omitempty"`
}

type Task struct {
	ID          string       `json:"id"`
	ProjectID   string       `json:"project_id"`
	CreatedBy   string       `json:"created_by"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Deadline    *string      `json:"deadline,omitempty"`
	Status      string       `json:"status"`
	Metadata    TaskMetadata `json:"metadata"`
}

type TaskInput struct {
	ProjectID   string   `json:"project_id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Deadline    *string  `json:"deadline,omitempty"`
	Priority    string   `json:"priority,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Notes       string   `json:"notes,omitempty"`
}

// TaskPatch updates a task; nil fields are left unchanged.
type TaskPatch struct {
	Status      *string   `json:"status,omitempty"`
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Deadline    *string   `json:"deadline,omitempty"`
	Priority    *string   `json:"priority,omitempty"`
	Tags        *[]string `json:"tags,omitempty"`
	Notes       *string   `json:"notes,omitempty"`
}

type Submission struct {
	ID          string `json:"id"`
	TaskID      string `json:"task_id"`
	ProjectID   string `json:"project_id"`
	SubmittedBy string `json:"submitted_by"`
	FileName    string `json:"file_name"`
	FilePath    string `json:"file_path"`
	FileSize    int64  `json:"file_size"`
	Notes       string `json:"notes,omitempty"`
	Status      string `json:"status"`
	ReviewNote  string `json:"review_note,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// PaginatedEvents wraps the event list with its cursor.
type PaginatedEvents struct {
	Events     []Event `json:"events"`
	NextCursor int64   `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

func (c *Client) UserCount(ctx context.Context) (int, error) {
	var resp struct {
		Count int `json:"count"`
	}
	err := c.do(ctx, http.MethodGet, "auth/user-count", nil, &resp)
	return resp.Count, err
}

func (c *Client) Register(ctx context.Context, name, email, password string) (Session, error) {
	var resp Session
	body := map[string]string{"name": name, "email": email, "password": password}
	err := c.do(ctx, http.MethodPost, "auth/register", body, &resp)
	return resp, err
}

func (c *Client) Login(ctx context.Context, email, password string) (Session, error) {
	var resp Session
	body := map[string]string{"email": email, "password": password}
	err := c.do(ctx, http.MethodPost, "auth/login", body, &resp)
	return resp, err
}

func (c *Client) Me(ctx context.Context) (User, error) {
	var resp User
	err := c.do(ctx, http.MethodGet, "auth/me", nil, &resp)
	return resp, err
}

func (c *Client) CreateProject(ctx context.Context, in ProjectInput) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPost, "projects", in, &resp)
	return resp, err
}

func (c *Client) GetProject(ctx context.Context, id string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, "projects/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var resp []Project
	err := c.do(ctx, http.MethodGet, "projects", nil, &resp)
	return resp, err
}

// EditProject sends only the fields set in patch.
func (c *Client) EditProject(ctx context.Context, id string, patch map[string]any) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPatch, "projects/"+url.PathEscape(id), patch, &resp)
	return resp, err
}

func (c *Client) AssignProject(ctx context.Context, id, solverID string) (Project, error) {
	var resp Project
	body := map[string]string{"problem_solver_id": solverID}
	err := c.do(ctx, http.MethodPatch, "projects/"+url.PathEscape(id)+"/assign", body, &resp)
	return resp, err
}

func (c *Client) CancelProject(ctx context.Context, id string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPatch, "projects/"+url.PathEscape(id)+"/cancel", nil, &resp)
	return resp, err
}

func (c *Client) CreateRequest(ctx context.Context, projectID, message string) (Request, error) {
	var resp Request
	body := map[string]string{"project_id": projectID, "message": message}
	err := c.do(ctx, http.MethodPost, "requests", body, &resp)
	return resp, err
}

func (c *Client) ListProjectRequests(ctx context.Context, projectID string) ([]Request, error) {
	var resp []Request
	err := c.do(ctx, http.MethodGet, "requests/project/"+url.PathEscape(projectID), nil, &resp)
	return resp, err
}

func (c *Client) ListMyRequests(ctx context.Context) ([]Request, error) {
	var resp []Request
	err := c.do(ctx, http.MethodGet, "requests/mine", nil, &resp)
	return resp, err
}

func (c *Client) CreateTask(ctx context.Context, in TaskInput) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks", in, &resp)
	return resp, err
}

func (c *Client) UpdateTask(ctx context.Context, id string, patch TaskPatch) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPatch, "tasks/"+url.PathEscape(id), patch, &resp)
	return resp, err
}

// SetTaskStatus is UpdateTask with only a status.
func (c *Client) SetTaskStatus(ctx context.Context, id, status string) (Task, error) {
	return c.UpdateTask(ctx, id, TaskPatch{Status: &status})
}

func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "tasks/"+url.PathEscape(id), nil, nil)
}

func (c *Client) ListTasks(ctx context.Context, projectID string) ([]Task, error) {
	var resp []Task
	err := c.do(ctx, http.MethodGet, "tasks/project/"+url.PathEscape(projectID), nil, &resp)
	return resp, err
}

// SubmitWork uploads an archive for a task as multipart form data.
func (c *Client) SubmitWork(ctx context.Context, taskID, notes, fileName string, file io.Reader) (Submission, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("task_id", taskID); err != nil {
		return Submission{}, err
	}
	if notes != "" {
		if err := mw.WriteField("notes", notes); err != nil {
			return Submission{}, err
		}
	}
	if file != nil {
		part, err := mw.CreateFormFile("file", fileName)
		if err != nil {
			return Submission{}, err
		}
		if _, err := io.Copy(part, file); err != nil {
			return Submission{}, err
		}
	}
	if err := mw.Close(); err != nil {
		return Submission{}, err
	}
	var resp Submission
	err := c.send(ctx, http.MethodPost, "submissions", mw.FormDataContentType(), &buf, &resp)
	return resp, err
}

func (c *Client) ReviewSubmission(ctx context.Context, id, decision, note string) (Submission, error) {
	var resp Submission
	body := map[string]string{"decision": decision, "review_note": note}
	err := c.do(ctx, http.MethodPatch, "submissions/"+url.PathEscape(id)+"/review", body, &resp)
	return resp, err
}

func (c *Client) ListSubmissions(ctx context.Context, taskID string) ([]Submission, error) {
	var resp []Submission
	err := c.do(ctx, http.MethodGet, "submissions/task/"+url.PathEscape(taskID), nil, &resp)
	return resp, err
}

func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var resp []User
	err := c.do(ctx, http.MethodGet, "users", nil, &resp)
	return resp, err
}

func (c *Client) GetUser(ctx context.Context, id string) (User, error) {
	var resp User
	err := c.do(ctx, http.MethodGet, "users/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

func (c *Client) SetRole(ctx context.Context, userID, role string) (User, error) {
	var resp User
	err := c.do(ctx, http.MethodPatch, "users/"+url.PathEscape(userID)+"/role", map[string]string{"role": role}, &resp)
	return resp, err
}

func (c *Client) UpdateProfile(ctx context.Context, p Profile) (User, error) {
	var resp User
	err := c.do(ctx, http.MethodPatch, "users/profile", p, &resp)
	return resp, err
}

func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, 0)
	return page.Events, err
}

func (c *Client) EventsPage(ctx context.Context, limit int, cursor int64) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor > 0 {
		q.Set("cursor", strconv.FormatInt(cursor, 10))
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Download fetches a stored artifact by its served path.
func (c *Client) Download(ctx context.Context, servedPath string) ([]byte, error) {
	var buf bytes.Buffer
	err := c.request(ctx, http.MethodGet, c.base()+servedPath, "", nil, &buf)
	return buf.Bytes(), err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	return c.send(ctx, method, endpoint, "application/json", &buf, out)
}

func (c *Client) send(ctx context.Context, method, endpoint, contentType string, body io.Reader, out any) error {
	u := c.base() + c.apiPath(endpoint)
	if out == nil {
		return c.request(ctx, method, u, contentType, body, nil)
	}
	var raw bytes.Buffer
	if err := c.request(ctx, method, u, contentType, body, &raw); err != nil {
		return err
	}
	return json.Unmarshal(raw.Bytes(), out)
}

func (c *Client) request(ctx context.Context, method, u, contentType string, body io.Reader, sink io.Writer) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if sink != nil {
		_, err = io.Copy(sink, resp.Body)
	}
	return err
}

func (c *Client) apiPath(endpoint string) string {
	base := "/" + strings.Trim(c.BasePath, "/")
	if base == "/" {
		base = ""
	}
	return base + "/" + strings.TrimLeft(endpoint, "/")
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
