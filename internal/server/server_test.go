package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"testing"

	"inproc/internal/config"
	"inproc/internal/db"
	"inproc/internal/engine"
	"inproc/internal/migrate"
	"inproc/internal/notify"
	"inproc/internal/repo"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	r := repo.Repo{DB: conn}
	e := engine.New(conn, cfg, notify.New(r, cfg, notify.OutboxSender{Repo: r}))
	handler, err := New(Config{Engine: e, BasePath: "/v0"})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func requestBody() map[string]any {
	return map[string]any{
		"emp_name":         "Jordan Casey",
		"emp_type":         "Civilian",
		"is_new_civ_mil":   "no",
		"eta":              "2024-04-01T08:00:00Z",
		"supervisor_name":  "Sam Boss",
		"supervisor_email": "sam.boss@base.mil",
	}
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v: %s", err, string(data))
	}
	return envelope.Error.Code
}

func TestRequestLifecycle(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/requests", requestBody(), nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create request status %d: %s", res.StatusCode, string(data))
	}
	var created CreateRequestResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal create response: %v", err)
	}
	if created.Request.Status != "Active" {
		t.Fatalf("expected Active status, got %s", created.Request.Status)
	}
	if len(created.Checklist) == 0 {
		t.Fatalf("expected checklist items")
	}

	// Closing with incomplete items is refused.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/requests/1/close", nil, nil)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 close block, got %d: %s", res.StatusCode, string(data))
	}
	if errorCode(t, data) != "validation_failed" {
		t.Fatalf("unexpected code: %s", string(data))
	}

	// Complete the supervisor 2875 step and observe the security step unlock.
	var sup2875 ChecklistItemResponse
	for _, it := range created.Checklist {
		if it.Title == "Supervisor Coordination of 2875" {
			sup2875 = it
		}
	}
	if sup2875.ID == 0 {
		t.Fatalf("supervisor 2875 not on checklist")
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/checklist/"+itoa(sup2875.ID)+"/complete", map[string]any{
		"completed_by_email": "sam.boss@base.mil",
	}, map[string]string{"X-Actor": "sam"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete status %d: %s", res.StatusCode, string(data))
	}
	var completed CompleteItemResponse
	if err := json.Unmarshal(data, &completed); err != nil {
		t.Fatalf("unmarshal complete response: %v", err)
	}
	if len(completed.Activated) != 1 || completed.Activated[0].Title != "Security Coordination of 2875" {
		t.Fatalf("expected security 2875 activation, got %+v", completed.Activated)
	}

	// Repeat completion is a no-op.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/checklist/"+itoa(sup2875.ID)+"/complete", map[string]any{
		"completed_by_email": "sam.boss@base.mil",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("repeat complete status %d: %s", res.StatusCode, string(data))
	}
	var repeat CompleteItemResponse
	_ = json.Unmarshal(data, &repeat)
	if !repeat.AlreadyCompleted {
		t.Fatalf("expected already_completed, got %s", string(data))
	}

	// Cancel needs a reason.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/requests/1/cancel", map[string]any{"reason": ""}, nil)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for empty reason, got %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/requests/1/cancel", map[string]any{"reason": "position withdrawn"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("cancel status %d: %s", res.StatusCode, string(data))
	}
	var cancelled RequestResponse
	_ = json.Unmarshal(data, &cancelled)
	if cancelled.Status != "Cancelled" || cancelled.CancelReason == nil {
		t.Fatalf("unexpected cancel response: %s", string(data))
	}
}

func TestNotFoundEnvelope(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/requests/999", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", res.StatusCode, string(data))
	}
	if errorCode(t, data) != "not_found" {
		t.Fatalf("unexpected envelope: %s", string(data))
	}
}

func TestSchemaValidationIsBadRequest(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	body := requestBody()
	body["emp_type"] = "Alien"
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/requests", body, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for enum violation, got %d: %s", res.StatusCode, string(data))
	}
	if errorCode(t, data) != "bad_request" {
		t.Fatalf("unexpected envelope: %s", string(data))
	}
}

func TestDuplicateRoleConflict(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	role := map[string]any{"name": "Riley Ops", "email": "riley@base.mil", "role": "IT"}
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/roles", role, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add role status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/roles", role, nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 duplicate role, got %d: %s", res.StatusCode, string(data))
	}
	if errorCode(t, data) != "conflict" {
		t.Fatalf("unexpected envelope: %s", string(data))
	}
}

func TestMyItemsEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/requests", requestBody(), nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create request status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/checklist/mine?email=sam.boss%40base.mil&incomplete_only=true", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("my items status %d: %s", res.StatusCode, string(data))
	}
	var items []ChecklistItemResponse
	if err := json.Unmarshal(data, &items); err != nil {
		t.Fatalf("unmarshal items: %v", err)
	}
	if len(items) == 0 {
		t.Fatalf("expected active supervisor items")
	}
	for _, it := range items {
		if !it.Active {
			t.Fatalf("inactive item surfaced: %+v", it)
		}
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
