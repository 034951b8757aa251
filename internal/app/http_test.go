package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"teamdesk/api/internal/authpw"
	"teamdesk/api/internal/store"
)

func serve(f *fixture, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	NewHTTPServer(f.svc, "*").Handler().ServeHTTP(rr, req)
	return rr
}

func jsonRequest(method, target string, body any) *http.Request {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to parse response %q: %v", rr.Body.String(), err)
	}
	return out
}

type downStore struct {
	*store.MemoryStore
}

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t)
	rr := serve(f, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if decode(t, rr)["ok"] != true {
		t.Fatalf("expected ok=true")
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("CORS origin header missing")
	}
}

func TestReadyEndpoint(t *testing.T) {
	f := newFixture(t)
	rr := serve(f, httptest.NewRequest(http.MethodGet, "/api/ready", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	checks := decode(t, rr)["checks"].(map[string]any)
	if checks["search"].(map[string]any)["backend"] != "store" {
		t.Fatalf("expected store search backend, got %v", checks["search"])
	}

	down := New(f.svc.cfg, Deps{Store: downStore{store.NewMemoryStore()}})
	rr = httptest.NewRecorder()
	NewHTTPServer(down, "*").Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/ready", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 with the database down, got %d", rr.Code)
	}
	if decode(t, rr)["status"] != "not_ready" {
		t.Fatalf("expected not_ready")
	}
}

func TestPreflightIsNoContent(t *testing.T) {
	f := newFixture(t)
	rr := serve(f, httptest.NewRequest(http.MethodOptions, "/api/projects", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
}

func TestProjectAndTaskOverHTTP(t *testing.T) {
	f := newFixture(t)
	admin := f.user(t, "ada", "admin")
	leader := f.user(t, "lee", "leader")
	amy := f.user(t, "amy", "member")

	req := jsonRequest(http.MethodPost, "/api/projects", map[string]any{
		"name":       "Apollo",
		"leader_id":  leader.Hex(),
		"member_ids": amy.Hex(),
	})
	req.Header.Set("X-Actor-Id", admin.Hex())
	rr := serve(f, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	project := decode(t, rr)["project"].(map[string]any)
	projectID := project["_id"].(string)
	if members := project["member_ids"].([]any); len(members) != 1 || members[0] != amy.Hex() {
		t.Fatalf("comma separated member ids should be accepted, got %v", project["member_ids"])
	}

	rr = serve(f, jsonRequest(http.MethodPost, "/api/tasks", map[string]any{
		"project_id":  projectID,
		"assignee_id": amy.Hex(),
		"title":       "Draft",
		"actor_id":    admin.Hex(),
	}))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	taskID := decode(t, rr)["task"].(map[string]any)["_id"].(string)

	rr = serve(f, jsonRequest(http.MethodPatch, "/api/tasks/"+taskID, map[string]any{
		"progress":   "100",
		"updated_by": amy.Hex(),
	}))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decode(t, rr)
	task := body["task"].(map[string]any)
	if task["status"] != "completed" || task["progress"] != float64(100) {
		t.Fatalf("string progress should complete the task, got %v", task)
	}
	if body["progress"].(map[string]any)["new"] != float64(100) {
		t.Fatalf("project progress should follow, got %v", body["progress"])
	}
	if f.notified(admin, "task_completed") != 1 {
		t.Fatalf("admin should hear about the completion")
	}

	rr = serve(f, jsonRequest(http.MethodPatch, "/api/tasks/"+taskID, map[string]any{"title": ""}))
	if rr.Code != http.StatusBadRequest || decode(t, rr)["error"] != "Title is required" {
		t.Fatalf("expected 400 for empty title, got %d %s", rr.Code, rr.Body.String())
	}

	rr = serve(f, httptest.NewRequest(http.MethodGet, "/api/tasks?project_id="+projectID, nil))
	if tasks := decode(t, rr)["tasks"].([]any); len(tasks) != 1 {
		t.Fatalf("expected one task, got %d", len(tasks))
	}
}

func TestErrorMapping(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name   string
		req    *http.Request
		status int
		code   string
	}{
		{name: "bad id", req: httptest.NewRequest(http.MethodGet, "/api/projects/xyz", nil), status: 400, code: "INVALID_ID"},
		{name: "missing project", req: httptest.NewRequest(http.MethodGet, "/api/projects/"+store.NewRef().Hex(), nil), status: 404, code: "NOT_FOUND"},
		{name: "missing task", req: httptest.NewRequest(http.MethodDelete, "/api/tasks/"+store.NewRef().Hex(), nil), status: 404, code: "NOT_FOUND"},
		{name: "signin bad email", req: jsonRequest(http.MethodPost, "/api/signin", map[string]any{"email": "nope", "password": "x"}), status: 400, code: "VALIDATION_ERROR"},
		{name: "signin unknown user", req: jsonRequest(http.MethodPost, "/api/signin", map[string]any{"email": "ghost@example.com", "password": "x"}), status: 401, code: "INVALID_CREDENTIALS"},
		{name: "malformed json", req: httptest.NewRequest(http.MethodPost, "/api/projects", strings.NewReader("{")), status: 400, code: "INVALID_BODY"},
		{name: "folders without caller", req: httptest.NewRequest(http.MethodGet, "/api/folders?project_id="+store.NewRef().Hex(), nil), status: 401, code: "UNAUTHORIZED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(f, tt.req)
			if rr.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rr.Code, rr.Body.String())
			}
			if got := decode(t, rr)["code"]; got != tt.code {
				t.Fatalf("expected code %s, got %v", tt.code, got)
			}
		})
	}
}

func TestSignInFlow(t *testing.T) {
	f := newFixture(t)
	rr := serve(f, jsonRequest(http.MethodPost, "/api/members", map[string]any{"email": "New@Example.com", "name": "Nia"}))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	rr = serve(f, jsonRequest(http.MethodPost, "/api/members", map[string]any{"email": "new@example.com"}))
	if rr.Code != http.StatusConflict {
		t.Fatalf("duplicate email should be 409, got %d", rr.Code)
	}

	rr = serve(f, jsonRequest(http.MethodPost, "/api/signin", map[string]any{"email": "new@example.com", "password": f.svc.cfg.DefaultMemberPassword}))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	user := decode(t, rr)["user"].(map[string]any)
	if _, leaked := user["password"]; leaked {
		t.Fatalf("password hash must not be returned")
	}
	if user["email"] != "new@example.com" {
		t.Fatalf("unexpected user %v", user)
	}

	if _, err := f.svc.SignIn(context.Background(), authpw.SignInRequest{Email: "new@example.com", Password: "wrong"}); err == nil {
		t.Fatalf("wrong password should fail")
	}
}

func TestNotificationsOverHTTP(t *testing.T) {
	f := newFixture(t)
	tm := newTeam(t, f)
	f.task(t, tm.project, tm.a, 0)
	if _, err := f.svc.RecomputeProgress(context.Background(), tm.project.ID); err != nil {
		t.Fatalf("RecomputeProgress failed: %v", err)
	}
	if _, err := f.svc.CreateTask(context.Background(), TaskInput{
		ProjectID:  strPtr(tm.project.ID.Hex()),
		AssigneeID: strPtr(tm.a.Hex()),
		Title:      strPtr("Ship"),
	}, who(tm.admin, "ada")); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	rr := serve(f, httptest.NewRequest(http.MethodGet, "/api/notifications/unread_count?for_user="+tm.a.Hex(), nil))
	if decode(t, rr)["count"] != float64(1) {
		t.Fatalf("expected one unread, got %s", rr.Body.String())
	}
	rr = serve(f, httptest.NewRequest(http.MethodGet, "/api/notifications/unread_count", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("missing for_user should be 400, got %d", rr.Code)
	}

	rr = serve(f, jsonRequest(http.MethodPost, "/api/notifications/mark_all_read", map[string]any{"for_user": tm.a.Hex()}))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	rr = serve(f, httptest.NewRequest(http.MethodGet, "/api/notifications/unread_count?for_user="+tm.a.Hex(), nil))
	if decode(t, rr)["count"] != float64(0) {
		t.Fatalf("expected zero unread after mark_all_read, got %s", rr.Body.String())
	}
}

func TestAnnouncementMultipartUpload(t *testing.T) {
	f := newFixture(t)
	admin := f.user(t, "ada", "admin")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("title", "Launch")
	_ = mw.WriteField("message", "We ship Friday")
	_ = mw.WriteField("sendTo", "all")
	_ = mw.WriteField("created_by", admin.Hex())
	header := make(map[string][]string)
	header["Content-Disposition"] = []string{`form-data; name="image"; filename="banner.png"`}
	header["Content-Type"] = []string{"image/png"}
	part, err := mw.CreatePart(header)
	if err != nil {
		t.Fatalf("CreatePart failed: %v", err)
	}
	_, _ = part.Write([]byte("\x89PNG"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/announcements", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := serve(f, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	a := decode(t, rr)["announcement"].(map[string]any)
	if a["sendTo"] != "all" || a["created_by"] != admin.Hex() {
		t.Fatalf("unexpected announcement %v", a)
	}
	imageURL, _ := a["image_url"].(string)
	if imageURL == "" {
		t.Fatalf("image url missing from %v", a)
	}

	rr = serve(f, httptest.NewRequest(http.MethodGet, imageURL, nil))
	if rr.Code != http.StatusOK || rr.Header().Get("Content-Type") != "image/png" || rr.Body.String() != "\x89PNG" {
		t.Fatalf("unexpected image response %d %q", rr.Code, rr.Header().Get("Content-Type"))
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.svc.cfg.MetricsEnabled = true

	if rr := serve(f, httptest.NewRequest(http.MethodGet, "/api/health", nil)); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	rr := serve(f, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `teamdesk_http_request_duration_seconds_count{method="GET",route="/api/health",status="200"}`) {
		t.Fatalf("health request was not recorded")
	}

	f.svc.cfg.MetricsEnabled = false
	if rr := serve(f, httptest.NewRequest(http.MethodGet, "/metrics", nil)); rr.Code != http.StatusNotFound {
		t.Fatalf("metrics should be off, got %d", rr.Code)
	}
}
