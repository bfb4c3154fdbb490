package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/betengine/internal/domain"
	"github.com/alanyoungcy/betengine/internal/store/sqlite"
)

func newRoot(out *bytes.Buffer, args ...string) *cobra.Command {
	root := &cobra.Command{Use: "betengine", SilenceUsage: true, SilenceErrors: true}
	RegisterFlags(root)
	root.AddCommand(PointsCommand(), ConfigCommand(), MigrateCommand(), AuditCommand())
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs(args)
	return root
}

func TestPointsCalc(t *testing.T) {
	var out bytes.Buffer
	if err := newRoot(&out, "points", "calc", "--usd", "20", "--timeframe", "300").Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out.String(), "points:     450") {
		t.Fatalf("unexpected output:\n%s", out.String())
	}
}

func TestPointsCalcJSON(t *testing.T) {
	var out bytes.Buffer
	if err := newRoot(&out, "points", "calc", "--usd", "20", "--timeframe", "300", "--json").Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var award struct {
		Points int64 `json:"points"`
		Won    bool  `json:"won"`
	}
	if err := json.Unmarshal(out.Bytes(), &award); err != nil {
		t.Fatalf("decode: %v\n%s", err, out.String())
	}
	if award.Points != 450 || !award.Won {
		t.Fatalf("award = %+v", award)
	}
}

func TestPointsCalcRejectsBadInput(t *testing.T) {
	var out bytes.Buffer
	if err := newRoot(&out, "points", "calc", "--usd", "20", "--timeframe", "0").Execute(); err == nil {
		t.Fatal("expected error for zero timeframe")
	}
	out.Reset()
	if err := newRoot(&out, "points", "calc", "--usd", "20").Execute(); err == nil {
		t.Fatal("expected error for missing --timeframe")
	}
}

func TestConfigShowRedacts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := "[server]\napi_key = \"super-secret\"\nport = 8123\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	if err := newRoot(&out, "--config", path, "config", "show").Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	s := out.String()
	if strings.Contains(s, "super-secret") {
		t.Fatalf("secret leaked:\n%s", s)
	}
	if !strings.Contains(s, "8123") || !strings.Contains(s, `"***"`) {
		t.Fatalf("unexpected output:\n%s", s)
	}
}

func TestMigrateSQLite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := "[store]\nbackend = \"sqlite\"\nsqlite_path = \"" + filepath.ToSlash(filepath.Join(dir, "db", "bets.db")) + "\"\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	if err := newRoot(&out, "--config", path, "migrate").Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "db", "bets.db")); err != nil {
		t.Fatalf("database not created: %v", err)
	}
}

func TestAuditListsFilteredEntries(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "bets.db")
	store, err := sqlite.Open(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("sqlite.Open: %v", err)
	}
	ctx := context.Background()
	_ = store.Log(ctx, domain.EventPointsAwarded, map[string]any{"address": "0xabc", "points": 450})
	_ = store.Log(ctx, domain.EventExportCompleted, map[string]any{"cursor": 1})
	_ = store.Log(ctx, domain.EventPointsAwarded, map[string]any{"address": "0xdef", "points": 10})
	_ = store.Close()

	path := filepath.Join(dir, "config.toml")
	body := "[store]\nbackend = \"sqlite\"\nsqlite_path = \"" + filepath.ToSlash(dbPath) + "\"\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := newRoot(&out, "--config", path, "audit", "--event", domain.EventPointsAwarded, "--json").Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var entries []domain.AuditEntry
	if err := json.Unmarshal(out.Bytes(), &entries); err != nil {
		t.Fatalf("decode: %v\n%s", err, out.String())
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %+v", entries)
	}
	for _, e := range entries {
		if e.Event != domain.EventPointsAwarded {
			t.Fatalf("unfiltered event %q", e.Event)
		}
	}

	out.Reset()
	if err := newRoot(&out, "--config", path, "audit", "--limit", "1").Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if lines := strings.Count(out.String(), "\n"); lines != 1 {
		t.Fatalf("expected one line, got:\n%s", out.String())
	}

	out.Reset()
	if err := newRoot(&out, "--config", path, "audit", "--limit", "0").Execute(); err == nil {
		t.Fatal("expected error for zero limit")
	}
}
