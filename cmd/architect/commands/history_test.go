// ABOUTME: End-to-end tests of the history and migrate commands
// ABOUTME: Runs the CLI against a temporary data directory configured through the environment

package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/harper/ddl-architect/internal/models"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DATA_DIR", dir)
	t.Setenv("STORE_BACKEND", "sqlite")
	t.Setenv("EMBEDDER", "hash")
	t.Setenv("VECTOR_DIMENSION", "16")
	t.Setenv("LLM_PROVIDER", "ollama")
	t.Setenv("LOG_LEVEL", "error")
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

const dump = `{
	"ids": ["user_a", "assistant_a"],
	"documents": ["Design a star schema for orders", "CREATE TABLE fact_orders (id INT);"],
	"metadatas": [
		{"database": "sales", "tables": "orders", "type": "user", "timestamp": "2024-05-01T12:00:00"},
		{"database": "sales", "tables": "orders", "type": "assistant", "timestamp": "2024-05-01T12:00:00"}
	]
}`

func TestHistoryLifecycle(t *testing.T) {
	dir := setupEnv(t)

	out, err := run(t, "history", "list")
	if err != nil {
		t.Fatalf("history list error = %v", err)
	}
	if !strings.Contains(out, "No conversations found") {
		t.Errorf("empty list output = %q", out)
	}

	dumpPath := filepath.Join(dir, "dump.json")
	if err := os.WriteFile(dumpPath, []byte(dump), 0o600); err != nil {
		t.Fatal(err)
	}
	out, err = run(t, "migrate", "--import", dumpPath)
	if err != nil {
		t.Fatalf("migrate error = %v", err)
	}
	if !strings.Contains(out, "Pairs migrated:  1") {
		t.Errorf("migrate output = %q", out)
	}

	out, err = run(t, "history", "list", "--format", "json", "--database", "sales")
	if err != nil {
		t.Fatalf("history list error = %v", err)
	}
	var convs []models.Conversation
	if err := json.Unmarshal([]byte(out), &convs); err != nil {
		t.Fatalf("list output is not JSON: %v\n%s", err, out)
	}
	if len(convs) != 1 || len(convs[0].Messages) != 1 {
		t.Fatalf("conversations = %+v", convs)
	}
	convID := convs[0].ID

	out, err = run(t, "history", "show", convs[0].Messages[0].ID)
	if err != nil || !strings.Contains(out, "CREATE TABLE fact_orders") {
		t.Errorf("show pair = %q, %v", out, err)
	}

	exportPath := filepath.Join(dir, "history.md")
	if _, err := run(t, "history", "export", "--type", "markdown", "-o", exportPath); err != nil {
		t.Fatalf("export error = %v", err)
	}
	exported, err := os.ReadFile(exportPath)
	if err != nil || !strings.Contains(string(exported), convID) {
		t.Errorf("export file = %q, %v", exported, err)
	}

	out, err = run(t, "history", "delete", convID)
	if err != nil || !strings.Contains(out, "Deleted 2 record(s)") {
		t.Errorf("delete = %q, %v", out, err)
	}
	if _, err := run(t, "history", "show", convID); err == nil {
		t.Error("show after delete should fail")
	}
}

func TestHistoryShowRejectsMalformedID(t *testing.T) {
	setupEnv(t)
	if _, err := run(t, "history", "show", "conv_nope"); err == nil {
		t.Error("expected a validation error")
	}
}

func TestMigrateFlagsExclusive(t *testing.T) {
	setupEnv(t)
	if _, err := run(t, "migrate", "--dry-run", "--import", "x.json"); err == nil {
		t.Error("--dry-run and --import together should fail")
	}
}
