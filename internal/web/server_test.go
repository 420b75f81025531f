package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/blazelab/blaze/internal/apply"
	"github.com/blazelab/blaze/internal/store"
)

func testServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := st.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return NewServer(st, 0, nil), st
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s, _ := testServer(t)
	rec := get(t, s, "/healthz")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestListChats(t *testing.T) {
	s, st := testServer(t)
	if err := st.CreateChat("c1", "myapp", "todo app"); err != nil {
		t.Fatalf("create chat: %v", err)
	}

	rec := get(t, s, "/api/apps/myapp/chats")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var chats []store.Chat
	if err := json.Unmarshal(rec.Body.Bytes(), &chats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(chats) != 1 || chats[0].Title != "todo app" {
		t.Errorf("unexpected chats: %+v", chats)
	}
}

func TestMessagesAreSanitized(t *testing.T) {
	s, st := testServer(t)
	if err := st.CreateChat("c1", "myapp", ""); err != nil {
		t.Fatalf("create chat: %v", err)
	}
	raw := "Here you go.\n\n<blaze-write path=\"a.ts\">\nx\n</blaze-write>"
	if _, err := st.AddMessage("c1", "assistant", raw); err != nil {
		t.Fatalf("add message: %v", err)
	}

	rec := get(t, s, "/api/chats/c1/messages")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var views []messageView
	if err := json.Unmarshal(rec.Body.Bytes(), &views); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("got %d messages, want 1", len(views))
	}
	if strings.Contains(views[0].Display, "<blaze-") {
		t.Errorf("display leaked control tags: %q", views[0].Display)
	}
	if !strings.Contains(views[0].Display, "Here you go.") {
		t.Errorf("display lost prose: %q", views[0].Display)
	}
}

func TestAppliesAndFixes(t *testing.T) {
	s, st := testServer(t)
	res := &apply.Result{UpdatedFiles: true, Counts: apply.Counts{Wrote: 1}}
	if err := st.LogApplyResult("myapp", "c1", res, true); err != nil {
		t.Fatalf("log apply: %v", err)
	}
	if err := st.LogFixAttempt("myapp", "c1", "fp", "server-stderr", "boom", 1); err != nil {
		t.Fatalf("log fix: %v", err)
	}

	rec := get(t, s, "/api/apps/myapp/applies")
	if rec.Code != http.StatusOK {
		t.Fatalf("applies status = %d", rec.Code)
	}
	var records []store.ApplyRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &records); err != nil {
		t.Fatalf("decode applies: %v", err)
	}
	if len(records) != 1 || records[0].Wrote != 1 {
		t.Errorf("unexpected records: %+v", records)
	}

	rec = get(t, s, "/api/apps/myapp/fixes")
	if rec.Code != http.StatusOK {
		t.Fatalf("fixes status = %d", rec.Code)
	}
	var attempts []store.FixAttempt
	if err := json.Unmarshal(rec.Body.Bytes(), &attempts); err != nil {
		t.Fatalf("decode fixes: %v", err)
	}
	if len(attempts) != 1 || attempts[0].Fingerprint != "fp" {
		t.Errorf("unexpected attempts: %+v", attempts)
	}
}

func TestStats(t *testing.T) {
	s, st := testServer(t)
	if err := st.CreateChat("c1", "myapp", ""); err != nil {
		t.Fatalf("create chat: %v", err)
	}
	res := &apply.Result{UpdatedFiles: true, Counts: apply.Counts{Wrote: 2}}
	if err := st.LogApplyResult("myapp", "c1", res, true); err != nil {
		t.Fatalf("log apply: %v", err)
	}

	rec := get(t, s, "/api/apps/myapp/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var view statsView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Stats == nil || view.Stats.FilesWritten != 2 {
		t.Errorf("unexpected stats: %+v", view.Stats)
	}
}

func TestUnknownRoutes(t *testing.T) {
	s, _ := testServer(t)
	for _, path := range []string{
		"/api/apps/myapp/bogus",
		"/api/apps/",
		"/api/chats/c1/bogus",
		"/nope",
	} {
		rec := get(t, s, path)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", path, rec.Code)
		}
	}
}

func TestMessageStreamMissingChat(t *testing.T) {
	s, _ := testServer(t)
	rec := get(t, s, "/api/chats/ghost/stream")
	if !strings.Contains(rec.Body.String(), "event: done") {
		t.Errorf("expected done event, got %q", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "chat not found") {
		t.Errorf("expected reason, got %q", rec.Body.String())
	}
}

func TestMessageStreamDeliversMessages(t *testing.T) {
	s, st := testServer(t)
	if err := st.CreateChat("c1", "myapp", ""); err != nil {
		t.Fatalf("create chat: %v", err)
	}
	if _, err := st.AddMessage("c1", "assistant", "hello there"); err != nil {
		t.Fatalf("add message: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/chats/c1/stream", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, "event: message") {
		t.Errorf("no message event in %q", body)
	}
	if !strings.Contains(body, "data: hello there") {
		t.Errorf("message text missing in %q", body)
	}
}
