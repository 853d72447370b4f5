package profilecache

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/always-cache/profile-cache/notify"
	apiclient "github.com/always-cache/profile-cache/pkg/api-client"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

var testLogger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).Level(zerolog.DebugLevel)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type gate struct {
	entered chan struct{}
	release chan struct{}
}

type failure struct {
	status int
	body   string
}

// mockAPI is a profile REST API counting requests by "METHOD /path".
type mockAPI struct {
	mu       sync.Mutex
	calls    map[string]int
	users    map[string]string
	list     string
	failures map[string]failure
	gates    map[string]*gate
	bodies   map[string]string
	server   *httptest.Server
}

func newMockAPI(t *testing.T) *mockAPI {
	t.Helper()
	m := &mockAPI{
		calls:    make(map[string]int),
		users:    make(map[string]string),
		list:     `[]`,
		failures: make(map[string]failure),
		gates:    make(map[string]*gate),
		bodies:   make(map[string]string),
	}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Method + " " + r.URL.Path
			body, _ := io.ReadAll(r.Body)
			m.mu.Lock()
			m.calls[key]++
			m.bodies[key] = string(body)
			f, failing := m.failures[key]
			m.mu.Unlock()
			if failing {
				w.WriteHeader(f.status)
				w.Write([]byte(f.body))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	})
	r.Get("/user/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		m.mu.Lock()
		g := m.gates[id]
		payload, ok := m.users[id]
		m.mu.Unlock()
		if g != nil {
			g.entered <- struct{}{}
			<-g.release
		}
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"message":"User not found"}`))
			return
		}
		w.Write([]byte(payload))
	})
	r.Get("/users/", func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		defer m.mu.Unlock()
		w.Write([]byte(m.list))
	})
	r.Put("/updateprofile/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var patch struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		m.set(id, `{"userProfile":{"id":"`+id+`","name":"`+patch.Name+`"}}`)
		w.Write([]byte(`{"message":"Profile updated"}`))
	})
	ok := func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}
	r.Post("/follow/{id}", ok)
	r.Post("/unfollow/{id}", ok)
	r.Post("/bookings/", ok)
	r.Put("/bookings/{id}", ok)
	r.Post("/events/{id}/guestlist", ok)
	r.Post("/events/{id}/tickets", ok)
	r.Post("/reviews/", ok)

	m.server = httptest.NewServer(r)
	t.Cleanup(m.server.Close)
	return m
}

func (m *mockAPI) set(id, payload string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id] = payload
}

func (m *mockAPI) setList(payload string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.list = payload
}

func (m *mockAPI) fail(key string, status int, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[key] = failure{status: status, body: body}
}

func (m *mockAPI) count(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[key]
}

func (m *mockAPI) body(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bodies[key]
}

// block holds requests for id until release is called.
func (m *mockAPI) block(id string) (<-chan struct{}, func()) {
	g := &gate{entered: make(chan struct{}, 10), release: make(chan struct{})}
	m.mu.Lock()
	m.gates[id] = g
	m.mu.Unlock()
	var once sync.Once
	return g.entered, func() { once.Do(func() { close(g.release) }) }
}

func (m *mockAPI) client(t *testing.T) *apiclient.Client {
	t.Helper()
	c, err := apiclient.New(apiclient.Config{BaseURL: m.server.URL, Timeout: 5 * time.Second, Logger: &testLogger})
	if err != nil {
		t.Fatalf("Could not create client: %v", err)
	}
	return c
}

type recorder struct {
	mu    sync.Mutex
	items []notify.Notification
}

func (r *recorder) Notify(n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

func (r *recorder) all() []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Notification(nil), r.items...)
}

// countingAPI counts GetUser calls made by the cache.
// When hold is set, the first call waits for it to be closed before reaching the server.
type countingAPI struct {
	API
	gets    atomic.Int32
	entered chan struct{}
	hold    chan struct{}
}

func newCountingAPI(api API) *countingAPI {
	return &countingAPI{API: api, entered: make(chan struct{}, 1), hold: make(chan struct{})}
}

func (c *countingAPI) GetUser(ctx context.Context, id string) ([]byte, error) {
	if c.gets.Add(1) == 1 {
		c.entered <- struct{}{}
		<-c.hold
	}
	return c.API.GetUser(ctx, id)
}

func newTestCache(t *testing.T, api *mockAPI, clock *fakeClock, notifier notify.Emitter) *ProfileCache {
	t.Helper()
	return newCacheWithAPI(t, api.client(t), clock, notifier)
}

func newCacheWithAPI(t *testing.T, api API, clock *fakeClock, notifier notify.Emitter) *ProfileCache {
	t.Helper()
	pc, err := CreateCache(Config{
		API:      api,
		Notifier: notifier,
		Logger:   &testLogger,
		Now:      clock.Now,
	})
	if err != nil {
		t.Fatalf("Could not create cache: %v", err)
	}
	return pc
}

// waitFor polls cond until it holds or a second has passed.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("Condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
