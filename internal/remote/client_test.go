package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/sadopc/taskr/internal/api"
)

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *MemoryTokens) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	tokens := &MemoryTokens{}
	return New(srv.URL, tokens), tokens
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestLoginSavesTokens(t *testing.T) {
	c, tokens := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/login" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var req api.LoginRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Email != "a@b.c" {
			t.Errorf("email = %q", req.Email)
		}
		writeJSON(w, http.StatusOK, api.AuthResponse{AccessToken: "acc", RefreshToken: "ref", User: api.User{ID: "u1"}})
	})

	resp, err := c.Login(context.Background(), api.LoginRequest{Email: "a@b.c", Password: "pw"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.User.ID != "u1" {
		t.Fatalf("user = %+v", resp.User)
	}
	tok, _ := tokens.Tokens()
	if tok.Access != "acc" || tok.Refresh != "ref" {
		t.Fatalf("tokens not saved: %+v", tok)
	}
}

func TestAuthHeaderSent(t *testing.T) {
	c, tokens := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer acc" {
			t.Errorf("Authorization = %q", got)
		}
		writeJSON(w, http.StatusOK, []api.TaskData{{ID: "t1", Title: "One"}})
	})
	tokens.SaveTokens(Tokens{Access: "acc", Refresh: "ref"})

	tasks, err := c.ListTasks(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 || tasks[0].ID != "t1" {
		t.Fatalf("tasks = %+v", tasks)
	}
}

func TestListTasksSince(t *testing.T) {
	c, tokens := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("since"); got != "1234" {
			t.Errorf("since = %q", got)
		}
		writeJSON(w, http.StatusOK, []api.TaskData{})
	})
	tokens.SaveTokens(Tokens{Access: "acc"})
	if _, err := c.ListTasks(context.Background(), 1234); err != nil {
		t.Fatal(err)
	}
}

func TestNoTokensIsUnauthorized(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not be sent without tokens")
	})
	_, err := c.ListTasks(context.Background(), 0)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestRefreshOnUnauthorized(t *testing.T) {
	var refreshes atomic.Int32
	c, tokens := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/refresh":
			refreshes.Add(1)
			var req api.RefreshRequest
			json.NewDecoder(r.Body).Decode(&req)
			if req.RefreshToken != "old-ref" {
				writeJSON(w, http.StatusUnauthorized, api.ErrorResponse{Error: "bad refresh"})
				return
			}
			writeJSON(w, http.StatusOK, api.AuthResponse{AccessToken: "new-acc", RefreshToken: "new-ref"})
		case "/api/me":
			if r.Header.Get("Authorization") != "Bearer new-acc" {
				writeJSON(w, http.StatusUnauthorized, api.ErrorResponse{Error: "expired"})
				return
			}
			writeJSON(w, http.StatusOK, api.User{ID: "u1"})
		}
	})
	tokens.SaveTokens(Tokens{Access: "old-acc", Refresh: "old-ref"})

	u, err := c.Me(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if u.ID != "u1" {
		t.Fatalf("user = %+v", u)
	}
	if refreshes.Load() != 1 {
		t.Fatalf("expected 1 refresh, got %d", refreshes.Load())
	}
	tok, _ := tokens.Tokens()
	if tok.Access != "new-acc" || tok.Refresh != "new-ref" {
		t.Fatalf("rotated tokens not saved: %+v", tok)
	}
}

func TestRefreshFailureIsUnauthorized(t *testing.T) {
	c, tokens := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, api.ErrorResponse{Error: "nope"})
	})
	tokens.SaveTokens(Tokens{Access: "a", Refresh: "r"})

	_, err := c.Me(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if Classify(err) != KindUnauthorized {
		t.Fatalf("Classify = %v", Classify(err))
	}
}

func TestServerErrorClassified(t *testing.T) {
	c, tokens := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadGateway, api.ErrorResponse{Error: "upstream"})
	})
	tokens.SaveTokens(Tokens{Access: "a"})

	_, err := c.ListGroups(context.Background())
	if !errors.Is(err, ErrServer) {
		t.Fatalf("expected ErrServer, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "upstream" {
		t.Fatalf("expected APIError with message, got %v", err)
	}
}

func TestNoInternetClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	tokens := &MemoryTokens{}
	tokens.SaveTokens(Tokens{Access: "a"})
	c := New(url, tokens)

	_, err := c.ListTasks(context.Background(), 0)
	if Classify(err) != KindNoInternet {
		t.Fatalf("expected no internet, got %v", err)
	}
}

func TestCanceledContextIsNotNoInternet(t *testing.T) {
	c, tokens := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, nil)
	})
	tokens.SaveTokens(Tokens{Access: "a"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.ListTasks(ctx, 0)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPutTaskConflictReturnsServerVersion(t *testing.T) {
	c, tokens := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tasks/t1" || r.Method != http.MethodPut {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		writeJSON(w, http.StatusConflict, api.TaskData{ID: "t1", Title: "server wins", UpdatedAt: 99})
	})
	tokens.SaveTokens(Tokens{Access: "a"})

	got, err := c.PutTask(context.Background(), api.TaskData{ID: "t1", Title: "mine", UpdatedAt: 5})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if got == nil || got.Title != "server wins" {
		t.Fatalf("expected server version, got %+v", got)
	}
}

func TestDeleteNotFoundIsSuccess(t *testing.T) {
	c, tokens := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, api.ErrorResponse{Error: "task not found"})
	})
	tokens.SaveTokens(Tokens{Access: "a"})
	if err := c.DeleteTask(context.Background(), "gone"); err != nil {
		t.Fatalf("404 delete should succeed, got %v", err)
	}
	if err := c.DeleteGroup(context.Background(), "gone"); err != nil {
		t.Fatalf("404 delete should succeed, got %v", err)
	}
}

func TestLogoutClearsTokensEvenOffline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	tokens := &MemoryTokens{}
	tokens.SaveTokens(Tokens{Access: "a", Refresh: "r"})
	c := New(url, tokens)

	err := c.Logout(context.Background())
	if Classify(err) != KindNoInternet {
		t.Fatalf("expected offline error to surface, got %v", err)
	}
	tok, _ := tokens.Tokens()
	if tok != (Tokens{}) {
		t.Fatalf("tokens should be cleared: %+v", tok)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{nil, KindOther},
		{errors.New("boom"), KindOther},
		{ErrNoInternet, KindNoInternet},
		{&APIError{Status: 500}, KindServer},
		{&APIError{Status: 503}, KindServer},
		{&APIError{Status: 401}, KindUnauthorized},
		{&APIError{Status: 400}, KindOther},
		{&APIError{Status: 404}, KindOther},
	}
	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.want {
			t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
