package reddit

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"cointipd/internal/models"
)

func newTestClient(t *testing.T, api *httptest.Server) *Client {
	t.Helper()

	auth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _, ok := r.BasicAuth()
		if !ok || user != "cid" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"access_token":"tok123","expires_in":3600}`)
	}))
	t.Cleanup(auth.Close)

	client, err := NewClient(models.RedditConfig{
		ClientId:     "cid",
		ClientSecret: "secret",
		Username:     "tipbot",
		Password:     "hunter2",
		BaseURL:      api.URL,
		AuthURL:      auth.URL,
	}, "cointipd test agent")
	if err != nil {
		t.Fatal(err)
	}
	return client
}

func TestFetchUnreadOldestFirst(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path != "/message/unread" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"data":{"children":[
			{"kind":"t4","data":{"name":"t4_new","author":"bob","body":"+info","created_utc":200}},
			{"kind":"t1","data":{"name":"t1_old","author":"alice","body":"+tip 1 btc","parent_id":"t1_p","created_utc":100}}
		]}}`)
	}))
	defer api.Close()

	client := newTestClient(t, api)
	messages, err := client.FetchUnread(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(messages))
	}
	if messages[0].Id != "t1_old" || messages[1].Id != "t4_new" {
		t.Errorf("messages not in arrival order: %s, %s", messages[0].Id, messages[1].Id)
	}
	if !messages[0].IsComment {
		t.Error("t1 thing should be a comment")
	}
	if messages[1].IsComment {
		t.Error("t4 thing should not be a comment")
	}
}

func TestParentAuthorDeleted(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"children":[{"kind":"t1","data":{"name":"t1_p","author":"[deleted]"}}]}}`)
	}))
	defer api.Close()

	author, err := newTestClient(t, api).ParentAuthor(context.Background(), "t1_p")
	if err != nil {
		t.Fatal(err)
	}
	if author != "" {
		t.Errorf("got author %q, want empty for deleted", author)
	}
}

func TestReplySendsForm(t *testing.T) {
	var gotThing, gotText string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/comment" {
			http.NotFound(w, r)
			return
		}
		r.ParseForm()
		gotThing = r.PostForm.Get("thing_id")
		gotText = r.PostForm.Get("text")
		fmt.Fprint(w, `{}`)
	}))
	defer api.Close()

	if err := newTestClient(t, api).Reply(context.Background(), "t1_abc", "thanks!"); err != nil {
		t.Fatal(err)
	}
	if gotThing != "t1_abc" || gotText != "thanks!" {
		t.Errorf("got thing_id=%q text=%q", gotThing, gotText)
	}
}

func TestRetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"data":{"children":[]}}`)
	}))
	defer api.Close()

	if _, err := newTestClient(t, api).FetchUnread(context.Background(), 10); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 3 {
		t.Errorf("got %d calls, want 3", calls.Load())
	}
}

func TestClientErrorFailsFast(t *testing.T) {
	var calls atomic.Int32
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer api.Close()

	if err := newTestClient(t, api).MarkRead(context.Background(), "t4_x"); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("got %d calls, want 1 (no retry on 4xx)", calls.Load())
	}
}
