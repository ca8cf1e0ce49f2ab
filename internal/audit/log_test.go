package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"

	"tallyboard.io/internal/auth"
)

func TestLogEvent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(zerolog.New(&buf))

	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-123")
	ctx = auth.ContextWithUser(ctx, "user-42")

	if err := logger.LogEvent(ctx, EventBulkDelete, map[string]any{"entity": "invoices"}); err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}

	line := buf.Bytes()
	if len(line) == 0 {
		t.Fatal("expected log output")
	}

	var entry map[string]any
	if err := json.Unmarshal(line, &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["type"] != "audit" {
		t.Fatalf("unexpected type: %v", entry["type"])
	}
	if entry["event"] != EventBulkDelete {
		t.Fatalf("unexpected event: %v", entry["event"])
	}
	if entry["request_id"] != "req-123" {
		t.Fatalf("unexpected request id: %v", entry["request_id"])
	}
	if entry["user_id"] != "user-42" {
		t.Fatalf("unexpected user id: %v", entry["user_id"])
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["entity"] != "invoices" {
		t.Fatalf("fields missing or incorrect: %v", entry["fields"])
	}
}

func TestLogEventRequiresName(t *testing.T) {
	var buf bytes.Buffer
	if err := New(zerolog.New(&buf)).LogEvent(context.Background(), "  ", nil); err == nil {
		t.Fatal("expected error for empty event")
	}
	if buf.Len() != 0 {
		t.Fatalf("unexpected output: %s", buf.String())
	}
}

func TestLogEventWithoutContext(t *testing.T) {
	var buf bytes.Buffer
	if err := New(zerolog.New(&buf)).LogEvent(context.Background(), EventTokenIssued, nil); err != nil {
		t.Fatalf("LogEvent: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := entry["user_id"]; ok {
		t.Fatalf("user_id should be absent: %v", entry)
	}
	if fields, ok := entry["fields"].(map[string]any); !ok || len(fields) != 0 {
		t.Fatalf("fields = %v", entry["fields"])
	}
}
