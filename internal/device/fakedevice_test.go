package device

import (
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/viforest/viforest/internal/config"
	"github.com/viforest/viforest/internal/http"
	"github.com/viforest/viforest/internal/logging"
	"github.com/viforest/viforest/internal/metrics"
)

// receivedChunk is one /upload_chunk request as the fake device saw it.
type receivedChunk struct {
	Index       int
	TotalChunks int
	FileMd5     string
	FileID      string
	FileName    string
	AppType     string
	FolderID    string
	PartName    string
	Data        []byte
}

// fakeDevice is an in-process stand-in for the device HTTP API.
type fakeDevice struct {
	t      *testing.T
	server *httptest.Server

	mu           sync.Mutex
	listings     map[string][]map[string]interface{} // keyed by folderId ("" = root)
	listQueries  []url.Values
	listCode     int
	capacityCode int
	capacityBody string

	chunks      []receivedChunk
	rejectChunk int // chunk index to reject, -1 for none

	packageQueries []url.Values
	packageCode    int
	packagedPath   string
	readyAfter     int // polls answered "not ready" before "ready"; -1 = never
	polls          int
	fetches        int
	artifact       []byte

	delay   time.Duration
	rawBody string // when set, every endpoint answers with this body
}

func newFakeDevice(t *testing.T) *fakeDevice {
	t.Helper()
	fd := &fakeDevice{
		t:            t,
		listings:     make(map[string][]map[string]interface{}),
		listCode:     200,
		capacityCode: 200,
		capacityBody: `{"current":1024,"currentStr":"1KB","free":3072,"freeStr":"3KB","total":4096,"totalStr":"4KB"}`,
		rejectChunk:  -1,
		packageCode:  200,
		packagedPath: "/storage/export/notes.pdf",
		readyAfter:   0,
		artifact:     []byte("%PDF-1.4 fake artifact"),
	}

	mux := nethttp.NewServeMux()
	mux.HandleFunc("/getCurrentCapacity", fd.handleCapacity)
	mux.HandleFunc("/getChildFolderList", fd.handleList)
	mux.HandleFunc("/upload_chunk", fd.handleUploadChunk)
	mux.HandleFunc("/packageFile", fd.handlePackage)
	mux.HandleFunc("/checkDownloadFile", fd.handleCheck)
	mux.HandleFunc("/download", fd.handleDownload)

	fd.server = httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		fd.mu.Lock()
		delay, raw := fd.delay, fd.rawBody
		fd.mu.Unlock()
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		if raw != "" {
			w.Write([]byte(raw))
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(fd.server.Close)
	return fd
}

// addr returns the host:port the client should target.
func (fd *fakeDevice) addr() string {
	u, _ := url.Parse(fd.server.URL)
	return u.Host
}

func writeEnvelope(w nethttp.ResponseWriter, code int, msg string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"code": code, "msg": msg, "data": data})
}

func (fd *fakeDevice) handleCapacity(w nethttp.ResponseWriter, r *nethttp.Request) {
	fd.mu.Lock()
	code, body := fd.capacityCode, fd.capacityBody
	fd.mu.Unlock()
	writeEnvelope(w, code, "", json.RawMessage(body))
}

func (fd *fakeDevice) handleList(w nethttp.ResponseWriter, r *nethttp.Request) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	fd.listQueries = append(fd.listQueries, r.URL.Query())
	if fd.listCode != 200 {
		writeEnvelope(w, fd.listCode, "folder not found", nil)
		return
	}
	items := fd.listings[r.URL.Query().Get("folderId")]
	if items == nil {
		items = []map[string]interface{}{}
	}
	writeEnvelope(w, 200, "", items)
}

func (fd *fakeDevice) handleUploadChunk(w nethttp.ResponseWriter, r *nethttp.Request) {
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		fd.t.Errorf("fake device: bad multipart body: %v", err)
		nethttp.Error(w, err.Error(), nethttp.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		fd.t.Errorf("fake device: missing file part: %v", err)
		nethttp.Error(w, err.Error(), nethttp.StatusBadRequest)
		return
	}
	data, _ := io.ReadAll(file)
	file.Close()

	index, _ := strconv.Atoi(r.FormValue("chunkIndex"))
	total, _ := strconv.Atoi(r.FormValue("totalChunks"))

	fd.mu.Lock()
	defer fd.mu.Unlock()
	fd.chunks = append(fd.chunks, receivedChunk{
		Index:       index,
		TotalChunks: total,
		FileMd5:     r.FormValue("fileMd5"),
		FileID:      r.FormValue("fileId"),
		FileName:    r.FormValue("fileName"),
		AppType:     r.FormValue("appType"),
		FolderID:    r.FormValue("folderId"),
		PartName:    header.Filename,
		Data:        data,
	})

	if index == fd.rejectChunk {
		writeEnvelope(w, 500, "storage busy", nil)
		return
	}
	writeEnvelope(w, 200, "", nil)
}

func (fd *fakeDevice) handlePackage(w nethttp.ResponseWriter, r *nethttp.Request) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	fd.packageQueries = append(fd.packageQueries, r.URL.Query())
	if fd.packageCode != 200 {
		writeEnvelope(w, fd.packageCode, "package failed", nil)
		return
	}
	writeEnvelope(w, 200, "", fd.packagedPath)
}

func (fd *fakeDevice) handleCheck(w nethttp.ResponseWriter, r *nethttp.Request) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	if r.URL.Query().Get("filePath") != fd.packagedPath {
		fd.t.Errorf("fake device: readiness check for unexpected path %q", r.URL.Query().Get("filePath"))
	}
	fd.polls++
	if fd.readyAfter < 0 || fd.polls <= fd.readyAfter {
		writeEnvelope(w, 202, "packaging", nil)
		return
	}
	writeEnvelope(w, 200, "", nil)
}

func (fd *fakeDevice) handleDownload(w nethttp.ResponseWriter, r *nethttp.Request) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	fd.fetches++
	if r.URL.Query().Get("filePath") != fd.packagedPath {
		nethttp.NotFound(w, r)
		return
	}
	w.Write(fd.artifact)
}

func (fd *fakeDevice) chunksReceived() []receivedChunk {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	return append([]receivedChunk(nil), fd.chunks...)
}

// newTestClient builds a Client over a real Transport with a fast poll policy.
func newTestClient(t *testing.T, requestTimeout time.Duration) (*Client, *metrics.Metrics) {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Device.RequestTimeout = requestTimeout
	transport, err := http.NewTransport(cfg, logging.NewNopLogger())
	if err != nil {
		t.Fatalf("NewTransport failed: %v", err)
	}

	m := metrics.New()
	opts := OptionsFromConfig(cfg)
	opts.PollInterval = time.Millisecond
	opts.Metrics = m
	return NewClient(transport, opts), m
}

// counts returns the package, poll and fetch request totals.
func (fd *fakeDevice) counts() (packages, polls, fetches int) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	return len(fd.packageQueries), fd.polls, fd.fetches
}
