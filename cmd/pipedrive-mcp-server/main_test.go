package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ggoodman/pipedrive-mcp-server-go/auth"
	"github.com/ggoodman/pipedrive-mcp-server-go/internal/config"
)

var envVars = []string{
	"PIPEDRIVE_API_TOKEN", "PIPEDRIVE_DOMAIN", "PIPEDRIVE_BASE_URL",
	"PIPEDRIVE_RATE_LIMIT_MIN_TIME_MS", "PIPEDRIVE_RATE_LIMIT_MAX_CONCURRENT",
	"MCP_TRANSPORT", "MCP_PORT", "MCP_ENDPOINT",
	"MCP_JWT_SECRET", "MCP_JWT_TOKEN", "MCP_JWT_ALGORITHM", "MCP_JWT_AUDIENCE", "MCP_JWT_ISSUER", "MCP_JWT_JWKS_URL",
	"LOG_LEVEL", "LOG_FILE", "MCP_METRICS_ADDR", "CACHE_BACKEND", "CACHE_TTL", "REDIS_URL",
}

// fakePipedrive serves /api/v1/users and counts requests.
func fakePipedrive(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("x-api-token") != "tok" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"success":false,"error":"unauthorized access"}`))
			return
		}
		switch r.URL.Path {
		case "/api/v1/users":
			_, _ = w.Write([]byte(`{"success":true,"data":[{"id":1,"name":"Ann","email":"ann@example.com","active_flag":true,"role_name":"admin"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"success":false,"error":"not found"}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func setEnv(t *testing.T, kv map[string]string) {
	t.Helper()
	for _, k := range envVars {
		t.Setenv(k, "")
	}
	for k, v := range kv {
		t.Setenv(k, v)
	}
}

func TestRunStdioServesTools(t *testing.T) {
	api, hits := fakePipedrive(t)
	setEnv(t, map[string]string{
		"PIPEDRIVE_API_TOKEN": "tok",
		"PIPEDRIVE_BASE_URL":  api.URL + "/api/v1",
		"CACHE_BACKEND":       "memory",
		"LOG_LEVEL":           "3",
	})

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	var errOut bytes.Buffer
	done := make(chan error, 1)
	go func() {
		done <- run(context.Background(), nil, inR, outW, &errOut)
		outW.Close()
	}()

	lines := bufio.NewScanner(outR)
	byID := map[string]map[string]any{}
	send := func(req string) {
		t.Helper()
		if _, err := io.WriteString(inW, req+"\n"); err != nil {
			t.Fatalf("write: %v", err)
		}
		if !lines.Scan() {
			t.Fatalf("no response to %s: %v", req, lines.Err())
		}
		var msg map[string]any
		if err := json.Unmarshal(lines.Bytes(), &msg); err != nil {
			t.Fatalf("bad output line %q: %v", lines.Text(), err)
		}
		b, _ := json.Marshal(msg["id"])
		byID[string(b)] = msg
	}

	send(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"t","version":"0"}}}`)
	send(`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"get-users","arguments":{}}}`)
	send(`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"get-users","arguments":{}}}`)
	inW.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v (stderr: %s)", err, errOut.String())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after stdin closed")
	}

	initRes, _ := byID["1"]["result"].(map[string]any)
	info, _ := initRes["serverInfo"].(map[string]any)
	if info["name"] != "pipedrive-mcp-server" || initRes["protocolVersion"] != "2024-11-05" {
		t.Fatalf("initialize result = %v", byID["1"])
	}

	for _, id := range []string{"2", "3"} {
		res, _ := byID[id]["result"].(map[string]any)
		content, _ := res["content"].([]any)
		if len(content) != 1 {
			t.Fatalf("tools/call %s = %v", id, byID[id])
		}
		text, _ := content[0].(map[string]any)["text"].(string)
		if !strings.Contains(text, "Found 1 users in your Pipedrive account") {
			t.Fatalf("tools/call %s text = %q", id, text)
		}
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("expected the second get-users to be served from cache, downstream hits = %d", got)
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	setEnv(t, nil)
	err := run(context.Background(), nil, strings.NewReader(""), io.Discard, io.Discard)
	if !errors.Is(err, config.ErrInvalid) {
		t.Fatalf("expected config.ErrInvalid, got %v", err)
	}
}

func TestRunRejectsBadBootToken(t *testing.T) {
	setEnv(t, map[string]string{
		"PIPEDRIVE_API_TOKEN": "tok",
		"PIPEDRIVE_DOMAIN":    "acme.pipedrive.com",
		"MCP_JWT_SECRET":      "s3cret",
		"MCP_JWT_TOKEN":       "not-a-jwt",
	})
	err := run(context.Background(), nil, strings.NewReader(""), io.Discard, io.Discard)
	if !errors.Is(err, auth.ErrBootToken) {
		t.Fatalf("expected auth.ErrBootToken, got %v", err)
	}
}

func TestRunHelp(t *testing.T) {
	setEnv(t, nil)
	if err := run(context.Background(), []string{"--help"}, strings.NewReader(""), io.Discard, io.Discard); err != nil {
		t.Fatalf("--help should exit cleanly, got %v", err)
	}
}

func TestServeSSEHealthAndShutdown(t *testing.T) {
	api, _ := fakePipedrive(t)
	setEnv(t, map[string]string{
		"PIPEDRIVE_API_TOKEN": "tok",
		"PIPEDRIVE_BASE_URL":  api.URL + "/api/v1",
		"MCP_TRANSPORT":       "sse",
		"LOG_LEVEL":           "3",
	})
	cfg, err := config.Load(nil)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg, discardLogger())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- a.serveSSE(ctx, ln) }()

	res, err := http.Get("http://" + ln.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	body, _ := io.ReadAll(res.Body)
	res.Body.Close()
	if res.StatusCode != 200 || strings.TrimSpace(string(body)) != `{"status":"ok","transport":"sse"}` {
		t.Fatalf("health = %d %q", res.StatusCode, body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serveSSE: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serveSSE did not stop")
	}
}
