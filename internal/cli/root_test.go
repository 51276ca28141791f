package cli

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/viforest/viforest/internal/config"
	"github.com/viforest/viforest/internal/events"
	"github.com/viforest/viforest/internal/logging"
)

func TestEnsureProxyPassword(t *testing.T) {
	tests := []struct {
		name     string
		mode     string
		user     string
		password string
		prompted bool
	}{
		{"ntlm without password", "ntlm", "alice", "", true},
		{"basic without password", "basic", "alice", "", true},
		{"password already set", "basic", "alice", "secret", false},
		{"no user", "ntlm", "", "", false},
		{"system proxy", "system", "alice", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := NewApp(context.Background())
			prompted := false
			app.readPassword = func(prompt string) (string, error) {
				prompted = true
				if !strings.Contains(prompt, "alice@proxy.local") {
					t.Errorf("unexpected prompt %q", prompt)
				}
				return "typed", nil
			}

			cfg := config.NewConfig()
			cfg.Proxy.Mode = tt.mode
			cfg.Proxy.Host = "proxy.local"
			cfg.Proxy.User = tt.user
			cfg.Proxy.Password = tt.password

			if err := app.ensureProxyPassword(cfg); err != nil {
				t.Fatalf("ensureProxyPassword failed: %v", err)
			}
			if prompted != tt.prompted {
				t.Errorf("prompted = %v, want %v", prompted, tt.prompted)
			}
			if tt.prompted && cfg.Proxy.Password != "typed" {
				t.Errorf("Password = %q, want typed", cfg.Proxy.Password)
			}
		})
	}
}

func TestEnsureProxyPassword_NoTerminal(t *testing.T) {
	app := NewApp(context.Background())
	app.readPassword = func(string) (string, error) { return "", errNotTerminal }

	cfg := config.NewConfig()
	cfg.Proxy.Mode = "ntlm"
	cfg.Proxy.Host = "proxy.local"
	cfg.Proxy.User = "alice"

	if err := app.ensureProxyPassword(cfg); !errors.Is(err, errNotTerminal) {
		t.Errorf("expected errNotTerminal, got %v", err)
	}
}

func TestRootCommandTree(t *testing.T) {
	root := NewRootCmd(NewApp(context.Background()))
	for _, path := range [][]string{
		{"ls"}, {"capacity"}, {"upload"}, {"download"}, {"connect"}, {"disconnect"}, {"shell"},
		{"devices", "add"}, {"devices", "list"}, {"devices", "remove"}, {"devices", "test"}, {"devices", "rename"},
		{"bookmarks", "add"}, {"bookmarks", "list"}, {"bookmarks", "remove"},
		{"config", "init"}, {"config", "show"}, {"config", "path"},
		{"completion"},
	} {
		cmd, _, err := root.Find(path)
		if err != nil || cmd == root {
			t.Errorf("command %q not found: %v", strings.Join(path, " "), err)
		}
	}
}

func TestCompletion(t *testing.T) {
	env := newTestEnv(t)
	out := env.mustRun(t, "completion", "bash")
	if !strings.Contains(out, "viforest") {
		t.Error("expected a bash completion script")
	}
	if _, err := env.run(t, "", "completion", "tcsh"); err == nil {
		t.Error("expected an error for an unsupported shell")
	}
}

func TestVerboseTraceFlushedBeforeClose(t *testing.T) {
	t.Cleanup(func() { logging.SetGlobalLevel(zerolog.InfoLevel) })
	dev := newTestDevice(t)
	env := newTestEnv(t)

	out := env.mustRun(t, "--verbose", "devices", "add", dev.addr(), "--name", "Desk")
	if !strings.Contains(out, "✓ Added Desk") {
		t.Errorf("missing command output:\n%s", out)
	}
	if !strings.Contains(out, string(events.EventConnectionChanged)) {
		t.Errorf("traced events should be logged before Close returns:\n%s", out)
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "✓ Added") && !strings.HasPrefix(line, "✓ Added") {
			t.Errorf("command output interleaved with a log line: %q", line)
		}
	}
}

func TestQuietRunResetsDebugLevel(t *testing.T) {
	t.Cleanup(func() { logging.SetGlobalLevel(zerolog.InfoLevel) })
	env := newTestEnv(t)

	env.mustRun(t, "--verbose", "devices", "list")
	out := env.mustRun(t, "devices", "list")
	if strings.Contains(out, string(events.EventConnectionChanged)) || strings.Contains(out, "DBG") {
		t.Errorf("debug output leaked into a quiet run:\n%s", out)
	}
}
