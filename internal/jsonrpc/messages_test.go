package jsonrpc

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		kind    string
		wantErr bool
	}{
		{name: "request", in: `{"jsonrpc":"2.0","id":1,"method":"ping"}`, kind: KindRequest},
		{name: "string id", in: `{"jsonrpc":"2.0","id":"a","method":"ping"}`, kind: KindRequest},
		{name: "notification", in: `{"jsonrpc":"2.0","method":"notifications/initialized"}`, kind: KindNotification},
		{name: "null id is notification", in: `{"jsonrpc":"2.0","id":null,"method":"x"}`, kind: KindNotification},
		{name: "response", in: `{"jsonrpc":"2.0","id":1,"result":{}}`, kind: KindResponse},
		{name: "wrong version", in: `{"jsonrpc":"1.0","id":1,"method":"ping"}`, wantErr: true},
		{name: "request with result", in: `{"jsonrpc":"2.0","id":1,"method":"ping","result":{}}`, wantErr: true},
		{name: "empty response", in: `{"jsonrpc":"2.0","id":1}`, wantErr: true},
		{name: "not json", in: `{`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Parse([]byte(tt.in))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %s", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := msg.Type(); got != tt.kind {
				t.Fatalf("kind: want %s got %s", tt.kind, got)
			}
		})
	}
}

func TestParseRejectsBatch(t *testing.T) {
	_, err := Parse([]byte(`  [{"jsonrpc":"2.0","id":1,"method":"ping"}]`))
	if !errors.Is(err, ErrBatchUnsupported) {
		t.Fatalf("want ErrBatchUnsupported, got %v", err)
	}
}

func TestErrorResponseWithoutIDEncodesNull(t *testing.T) {
	b, err := json.Marshal(NewErrorResponse(nil, ErrorCodeParseError, "parse error", nil))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"jsonrpc":"2.0","error":{"code":-32700,"message":"parse error"},"id":null}`
	if string(b) != want {
		t.Fatalf("want %s got %s", want, b)
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	msg, err := Parse([]byte(`{"jsonrpc":"2.0","id":42,"method":"ping"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if msg.ID.String() != "42" {
		t.Fatalf("id: want 42 got %q", msg.ID.String())
	}
	resp, err := NewResultResponse(msg.ID, map[string]any{})
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	b, _ := json.Marshal(resp)
	if string(b) != `{"jsonrpc":"2.0","result":{},"id":42}` {
		t.Fatalf("unexpected encoding: %s", b)
	}
}
