package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/driftapp/drift-app-backend/api"
	qt "github.com/frankban/quicktest"
)

func envelope(w http.ResponseWriter, status int, data any, message string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(api.Response{
		Header: api.ResponseHeader{Success: status < 400, Message: message},
		Data:   data,
	})
}

func TestClientDecodesEnvelope(t *testing.T) {
	c := qt.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login":
			envelope(w, 200, api.LoginResponse{Token: "tok123"}, "")
		case "/posts/nearby":
			c.Check(r.Header.Get("Authorization"), qt.Equals, "Bearer tok123")
			c.Check(r.URL.Query().Get("lat"), qt.Equals, "41.3851")
			c.Check(r.URL.Query().Get("radiusKm"), qt.Equals, "10")
			envelope(w, 200, api.PostsWrapper{Posts: []api.Post{{ID: "p1", Content: "hi"}}}, "")
		default:
			envelope(w, 404, nil, "not found")
		}
	}))
	defer server.Close()

	client := New(server.URL, nil)

	login, err := client.Login(context.Background(), "a@b.com", "pw")
	c.Assert(err, qt.IsNil)
	c.Assert(login.Token, qt.Equals, "tok123")

	posts, err := client.NearbyPosts(context.Background(), 41.3851, 2.1734, 10)
	c.Assert(err, qt.IsNil)
	c.Assert(posts, qt.HasLen, 1)
	c.Assert(posts[0].Content, qt.Equals, "hi")
}

func TestClientSentinelErrors(t *testing.T) {
	c := qt.New(t)

	statuses := map[string]int{
		"/bad":      400,
		"/noauth":   401,
		"/notmine":  403,
		"/missing":  404,
		"/toomany":  429,
		"/exploded": 500,
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		envelope(w, statuses[r.URL.Path], nil, "nope")
	}))
	defer server.Close()

	client := New(server.URL, nil)
	check := func(path string, want error) {
		err := client.do(context.Background(), http.MethodGet, path, nil, nil, nil)
		c.Assert(errors.Is(err, want), qt.IsTrue, qt.Commentf("path %s, got %v", path, err))
	}

	check("/bad", ErrInvalidInput)
	check("/noauth", ErrUnauthenticated)
	check("/notmine", ErrUnauthorized)
	check("/missing", ErrNotFound)
	check("/toomany", ErrRateLimited)
	check("/exploded", ErrQueryFailed)
}
