package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordDeviceRequest(t *testing.T) {
	m := New()
	m.RecordDeviceRequest("list", true, 10*time.Millisecond)
	m.RecordDeviceRequest("list", true, 10*time.Millisecond)
	m.RecordDeviceRequest("list", false, time.Second)

	if got := testutil.ToFloat64(m.deviceRequestsTotal.WithLabelValues("list", ResultOK)); got != 2 {
		t.Errorf("ok count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.deviceRequestsTotal.WithLabelValues("list", ResultFailure)); got != 1 {
		t.Errorf("failure count = %v, want 1", got)
	}
}

func TestRecordChunkAndTransfer(t *testing.T) {
	m := New()
	m.RecordChunk(1024)
	m.RecordChunk(512)
	m.RecordDownloadBytes(2048)
	m.RecordTransfer(DirectionUpload, true)
	m.RecordTransfer(DirectionDownload, false)

	if got := testutil.ToFloat64(m.uploadChunksTotal); got != 2 {
		t.Errorf("chunks = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.transferBytesTotal.WithLabelValues(DirectionUpload)); got != 1536 {
		t.Errorf("upload bytes = %v, want 1536", got)
	}
	if got := testutil.ToFloat64(m.transferBytesTotal.WithLabelValues(DirectionDownload)); got != 2048 {
		t.Errorf("download bytes = %v, want 2048", got)
	}
	if got := testutil.ToFloat64(m.transfersTotal.WithLabelValues(DirectionDownload, ResultFailure)); got != 1 {
		t.Errorf("failed downloads = %v, want 1", got)
	}
}

func TestSeparateRegistries(t *testing.T) {
	a := New()
	b := New()
	a.RecordChunk(1)

	if got := testutil.ToFloat64(b.uploadChunksTotal); got != 0 {
		t.Errorf("registries leaked counters: %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordDeviceRequest("x", true, 0)
	m.RecordChunk(1)
	m.RecordDownloadBytes(1)
	m.RecordTransfer(DirectionUpload, true)
	m.RecordPollAttempts(3)
	if err := m.WriteFile("/nonexistent/dir/file.prom"); err != nil {
		t.Errorf("nil WriteFile should be a no-op, got %v", err)
	}
}

func TestWriteFile(t *testing.T) {
	m := New()
	m.RecordPollAttempts(4)
	m.RecordTransfer(DirectionUpload, true)

	path := filepath.Join(t.TempDir(), "viforest.prom")
	if err := m.WriteFile(path); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	for _, want := range []string{"viforest_transfers_total", "viforest_download_poll_attempts_count 1"} {
		if !strings.Contains(text, want) {
			t.Errorf("metrics file missing %q", want)
		}
	}
}
