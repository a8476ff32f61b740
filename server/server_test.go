package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/pombredanne/bipio/engine"
	"github.com/pombredanne/bipio/pods/flow"
	"github.com/pombredanne/bipio/store"
)

func newTestServer(t *testing.T) (*gin.Engine, *store.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := store.New(filepath.Join(t.TempDir(), "bipio.db"))
	if err := st.Open(); err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	reg := engine.NewRegistry(slog.Default())
	if err := reg.Register(flow.New(), nil); err != nil {
		t.Fatalf("registering pod: %v", err)
	}
	if err := reg.Init(st); err != nil {
		t.Fatalf("initialising registry: %v", err)
	}

	invoker := engine.NewInvoker(slog.Default(), reg, nil)
	g := gin.New()
	New(slog.Default(), reg, st, invoker, "bip.example.org").Routes(g)
	return g, st
}

func saveChannel(t *testing.T, st *store.Store, ch *engine.Channel) *engine.Channel {
	t.Helper()
	if _, err := st.SaveChannel(ch); err != nil {
		t.Fatalf("saving channel: %v", err)
	}
	return ch
}

func TestDescribe(t *testing.T) {
	g, _ := newTestServer(t)

	w := httptest.NewRecorder()
	g.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rpc/describe", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var body map[string][]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	found := false
	for _, a := range body["actions"] {
		if a == "flow.filter" {
			found = true
		}
	}
	if !found {
		t.Errorf("actions: got %v", body["actions"])
	}
}

func TestInvokeEndpoint(t *testing.T) {
	g, st := newTestServer(t)
	ch := saveChannel(t, st, &engine.Channel{
		OwnerID:   "u-1",
		Name:      "gate",
		Action:    "flow.filter",
		Config:    map[string]any{"expression": `value == "go"`},
		Available: true,
	})

	body := `{"exports":{"local":{"input":"go"}},"transforms":[{"dst":"value","src":"input"}]}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/rpc/invoke/"+ch.ID, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	g.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Exports map[string]any `json:"exports"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Exports["pass"] != true {
		t.Errorf("exports: got %v", resp.Exports)
	}
}

func TestInvokeUnknownChannel(t *testing.T) {
	g, _ := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/rpc/invoke/missing", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	g.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status: got %d", w.Code)
	}
}

func TestInvokeUnavailableChannel(t *testing.T) {
	g, st := newTestServer(t)
	ch := saveChannel(t, st, &engine.Channel{
		OwnerID: "u-1",
		Name:    "paused",
		Action:  "flow.filter",
		Config:  map[string]any{"expression": "true"},
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/rpc/invoke/"+ch.ID, strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	g.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("status: got %d", w.Code)
	}
}

func TestRenderUnknownRenderer(t *testing.T) {
	g, st := newTestServer(t)
	ch := saveChannel(t, st, &engine.Channel{
		OwnerID:   "u-1",
		Name:      "gate",
		Action:    "flow.filter",
		Config:    map[string]any{"expression": "true"},
		Available: true,
	})

	w := httptest.NewRecorder()
	g.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rpc/render/channel/"+ch.ID+"/outbox", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status: got %d", w.Code)
	}
}
