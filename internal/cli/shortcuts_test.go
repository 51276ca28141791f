package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// connectedEnv returns an environment with dev added and active.
func connectedEnv(t *testing.T, dev *testDevice) *testEnv {
	t.Helper()
	env := newTestEnv(t)
	env.mustRun(t, "devices", "add", dev.addr())
	return env
}

func TestLsShortcut(t *testing.T) {
	dev := newTestDevice(t)
	env := connectedEnv(t, dev)

	out := env.mustRun(t, "ls")
	if !strings.Contains(out, "/ (1 entries)") || !strings.Contains(out, "Docs  [A1]") {
		t.Errorf("unexpected root listing:\n%s", out)
	}

	out = env.mustRun(t, "ls", "/Docs")
	if !strings.Contains(out, "/Docs/ (1 entries)") || !strings.Contains(out, "Meeting  [N1]") {
		t.Errorf("unexpected Docs listing:\n%s", out)
	}
	if !strings.Contains(out, "2.0 KB") {
		t.Errorf("expected a formatted size:\n%s", out)
	}

	if _, err := env.run(t, "", "ls", "/Missing"); err == nil {
		t.Error("expected an error for a missing folder")
	}
}

func TestCapacityShortcut(t *testing.T) {
	dev := newTestDevice(t)
	env := connectedEnv(t, dev)

	out := env.mustRun(t, "df")
	for _, want := range []string{"Used:  1 KB (25.0%)", "Free:  3 KB", "Total: 4 KB"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in:\n%s", want, out)
		}
	}
}

func TestUploadShortcut(t *testing.T) {
	dev := newTestDevice(t)
	env := connectedEnv(t, dev)

	local := filepath.Join(t.TempDir(), "notes.pdf")
	if err := os.WriteFile(local, []byte("hello device"), 0644); err != nil {
		t.Fatal(err)
	}

	out := env.mustRun(t, "upload", local, "--to", "/Docs")
	if !strings.Contains(out, "Uploaded 1 of 1 file(s)") {
		t.Errorf("unexpected upload output:\n%s", out)
	}
	if !strings.Contains(out, "notes.pdf") {
		t.Errorf("expected progress line for notes.pdf:\n%s", out)
	}

	chunks := dev.uploadedChunks()
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if got := chunks[0].Get("fileName"); got != "notes.pdf" {
		t.Errorf("fileName = %q, want notes.pdf", got)
	}
	if got := chunks[0].Get("folderId"); got != "A1" {
		t.Errorf("folderId = %q, want A1", got)
	}
}

func TestUploadShortcut_RejectsMissingAndDirectories(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.run(t, "", "upload", filepath.Join(t.TempDir(), "nope.pdf")); err == nil {
		t.Error("expected an error for a missing file")
	}
	if _, err := env.run(t, "", "upload", t.TempDir()); err == nil {
		t.Error("expected an error for a directory")
	}
}

func TestDownloadShortcut(t *testing.T) {
	dev := newTestDevice(t)
	env := connectedEnv(t, dev)
	outDir := t.TempDir()

	out := env.mustRun(t, "download", "/Docs/Meeting", "--outdir", outDir)
	if !strings.Contains(out, "Downloaded 1 of 1 file(s)") {
		t.Errorf("unexpected download output:\n%s", out)
	}
	target := filepath.Join(outDir, "Meeting.pdf")
	if got := readFile(t, target); got != "%PDF-1.4 meeting" {
		t.Errorf("content = %q", got)
	}

	// a second download never overwrites
	env.mustRun(t, "download", "/Docs/Meeting", "--outdir", outDir)
	if _, err := os.Stat(filepath.Join(outDir, "Meeting (1).pdf")); err != nil {
		t.Errorf("expected a suffixed copy: %v", err)
	}
}

func TestDownloadShortcut_DefaultDir(t *testing.T) {
	dev := newTestDevice(t)
	env := connectedEnv(t, dev)

	env.mustRun(t, "download", "Docs/N1")
	if _, err := os.Stat(filepath.Join(env.downloadDir, "Meeting.pdf")); err != nil {
		t.Errorf("expected file in the configured download dir: %v", err)
	}
}

func TestDownloadShortcut_UnknownEntry(t *testing.T) {
	dev := newTestDevice(t)
	env := connectedEnv(t, dev)

	_, err := env.run(t, "", "download", "/Docs/Nothing")
	if err == nil || !strings.Contains(err.Error(), `"Nothing" not found`) {
		t.Errorf("expected not-found error, got %v", err)
	}
}
