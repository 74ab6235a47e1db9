package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPort(t *testing.T) {
	t.Setenv("TEST_PORT", "70000")
	if _, err := Port("TEST_PORT", "8080"); err == nil {
		t.Fatal("expected error for out of range port")
	}
	t.Setenv("TEST_PORT", "")
	got, err := Port("TEST_PORT", "8085")
	if err != nil || got != "8085" {
		t.Fatalf("expected fallback 8085, got %q (%v)", got, err)
	}
}

func TestIntBoolSecondsList(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_BAD_INT", "nope")
	t.Setenv("TEST_BOOL", "yes")
	t.Setenv("TEST_SECONDS", "15")
	t.Setenv("TEST_LIST", " a, ,b ,c")

	if got := Int("TEST_INT", 1); got != 42 {
		t.Fatalf("Int: got %d", got)
	}
	if got := Int("TEST_BAD_INT", 7); got != 7 {
		t.Fatalf("Int fallback: got %d", got)
	}
	if !Bool("TEST_BOOL", false) {
		t.Fatal("Bool: expected true")
	}
	if Bool("TEST_UNSET_BOOL", false) {
		t.Fatal("Bool: expected fallback false")
	}
	if got := Seconds("TEST_SECONDS", time.Second); got != 15*time.Second {
		t.Fatalf("Seconds: got %s", got)
	}
	list := List("TEST_LIST", "")
	if len(list) != 3 || list[0] != "a" || list[2] != "c" {
		t.Fatalf("List: got %#v", list)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("CLINICBOOK_DOTENV_TEST=loaded\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Cleanup(func() { _ = os.Unsetenv("CLINICBOOK_DOTENV_TEST") })

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("CLINICBOOK_DOTENV_TEST"); got != "loaded" {
		t.Fatalf("expected loaded, got %q", got)
	}
}
