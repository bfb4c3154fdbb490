package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/betengine/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

type recordingSender struct {
	name string
	err  error
	sent []string
}

func (s *recordingSender) Send(_ context.Context, title, _ string) error {
	s.sent = append(s.sent, title)
	return s.err
}

func (s *recordingSender) Name() string { return s.name }

func TestNotifyFiltersEvents(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, nil, 0, discardLogger())
	ctx := context.Background()

	if err := n.Notify(ctx, domain.EventBetSettled, "settled", "m"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if err := n.Notify(ctx, domain.EventPriceUpdate, "price", "m"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(s.sent) != 1 || s.sent[0] != "settled" {
		t.Fatalf("sent = %v", s.sent)
	}

	only := NewNotifier([]Sender{s}, []string{" error "}, 0, discardLogger())
	_ = only.Notify(ctx, domain.EventBetSettled, "skipped", "m")
	_ = only.Notify(ctx, domain.EventError, "boom", "m")
	if len(s.sent) != 2 || s.sent[1] != "boom" {
		t.Fatalf("sent = %v", s.sent)
	}
}

func TestNotifyCooldown(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, nil, time.Minute, discardLogger())
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return now }
	ctx := context.Background()

	_ = n.Notify(ctx, domain.EventError, "rpc down", "a")
	_ = n.Notify(ctx, domain.EventError, "rpc down", "b")
	_ = n.Notify(ctx, domain.EventError, "redis down", "c")
	now = now.Add(2 * time.Minute)
	_ = n.Notify(ctx, domain.EventError, "rpc down", "d")

	if len(s.sent) != 3 {
		t.Fatalf("sent = %v", s.sent)
	}
}

func TestNotifyJoinsSenderErrors(t *testing.T) {
	boom := errors.New("boom")
	bad := &recordingSender{name: "bad", err: boom}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, 0, discardLogger())

	err := n.Notify(context.Background(), domain.EventError, "t", "m")
	if !errors.Is(err, boom) || !strings.Contains(err.Error(), "bad") {
		t.Fatalf("expected joined error naming the sender, got %v", err)
	}
	if len(good.sent) != 1 {
		t.Fatal("healthy sender was skipped")
	}
}

func TestTelegramSender(t *testing.T) {
	var got map[string]any
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender(srv.URL+"/", "tok", "42")
	if err := s.Send(context.Background(), "Bet <settled>", "a & b"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if path != "/bottok/sendMessage" {
		t.Fatalf("path = %s", path)
	}
	if got["chat_id"] != "42" || got["text"] != "<b>Bet &lt;settled&gt;</b>\na &amp; b" {
		t.Fatalf("payload = %v", got)
	}
}

func TestDiscordSenderErrorsAndTruncation(t *testing.T) {
	var content string
	status := http.StatusNoContent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		content, _ = body["content"].(string)
		w.WriteHeader(status)
		_, _ = w.Write([]byte("nope"))
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)
	if err := s.Send(context.Background(), "t", strings.Repeat("x", 3000)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if n := len([]rune(content)); n != discordLimit {
		t.Fatalf("content length = %d", n)
	}

	status = http.StatusTooManyRequests
	err := s.Send(context.Background(), "t", "m")
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected status error, got %v", err)
	}
}
