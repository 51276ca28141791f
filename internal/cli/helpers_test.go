package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// testDevice serves a root folder holding "Docs" (A1), which holds the
// note "Meeting" (N1). Uploads are recorded; downloads return artifact.
type testDevice struct {
	server *httptest.Server

	mu       sync.Mutex
	uploads  []url.Values
	artifact []byte
}

func newTestDevice(t *testing.T) *testDevice {
	t.Helper()
	d := &testDevice{artifact: []byte("%PDF-1.4 meeting")}

	write := func(w nethttp.ResponseWriter, code int, data interface{}) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"code": code, "msg": "success", "data": data})
	}

	mux := nethttp.NewServeMux()
	mux.HandleFunc("/getCurrentCapacity", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		write(w, 200, map[string]interface{}{
			"current": 1024, "currentStr": "1 KB",
			"free": 3072, "freeStr": "3 KB",
			"total": 4096, "totalStr": "4 KB",
		})
	})
	mux.HandleFunc("/getChildFolderList", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		switch r.URL.Query().Get("folderId") {
		case "":
			write(w, 200, []map[string]interface{}{
				{"fileName": "Docs", "isFolder": true, "noteId": "A1", "appType": "APP_DOC"},
			})
		case "A1":
			write(w, 200, []map[string]interface{}{
				{"fileName": "Meeting", "noteId": "N1", "notePId": "A1", "appType": "APP_DOC", "size": 2048},
			})
		default:
			write(w, 200, []map[string]interface{}{})
		}
	})
	mux.HandleFunc("/upload_chunk", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if err := r.ParseMultipartForm(8 << 20); err != nil {
			nethttp.Error(w, err.Error(), nethttp.StatusBadRequest)
			return
		}
		d.mu.Lock()
		d.uploads = append(d.uploads, url.Values(r.MultipartForm.Value))
		d.mu.Unlock()
		write(w, 200, nil)
	})
	mux.HandleFunc("/packageFile", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		write(w, 200, "/export/"+r.URL.Query().Get("fileName")+".pdf")
	})
	mux.HandleFunc("/checkDownloadFile", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		write(w, 200, nil)
	})
	mux.HandleFunc("/download", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		d.mu.Lock()
		defer d.mu.Unlock()
		w.Write(d.artifact)
	})

	d.server = httptest.NewServer(mux)
	t.Cleanup(d.server.Close)
	return d
}

// addr returns the host:port to register with the CLI.
func (d *testDevice) addr() string {
	u, _ := url.Parse(d.server.URL)
	return u.Host
}

func (d *testDevice) uploadedChunks() []url.Values {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]url.Values(nil), d.uploads...)
}

// testEnv is one user's config file, state and download directories.
type testEnv struct {
	configPath  string
	stateDir    string
	downloadDir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		configPath:  filepath.Join(dir, "config"),
		stateDir:    filepath.Join(dir, "state"),
		downloadDir: filepath.Join(dir, "downloads"),
	}
	content := "[device]\nrequest_timeout_ms = 2000\nrequest_retries = 0\n\n" +
		"[transfer]\npoll_interval_ms = 1\ndownload_dir = " + env.downloadDir + "\n\n" +
		"[proxy]\nmode = no-proxy\n"
	if err := os.WriteFile(env.configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return env
}

// run executes one CLI invocation with stdin set to input and returns its
// combined output.
func (e *testEnv) run(t *testing.T, input string, args ...string) (string, error) {
	t.Helper()
	app := NewApp(context.Background())
	app.readPassword = func(string) (string, error) {
		t.Error("unexpected password prompt")
		return "", nil
	}
	root := NewRootCmd(app)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(input))
	root.SetArgs(append([]string{"--config", e.configPath, "--state-dir", e.stateDir}, args...))

	err := root.Execute()
	if closeErr := app.Close(); closeErr != nil {
		t.Errorf("Close failed: %v", closeErr)
	}
	return out.String(), err
}

// mustRun is run that fails the test on error.
func (e *testEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, "", args...)
	if err != nil {
		t.Fatalf("viforest %s failed: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open %s: %v", path, err)
	}
	defer f.Close()
	b, _ := io.ReadAll(f)
	return string(b)
}
