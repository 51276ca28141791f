package transfer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/viforest/viforest/internal/device"
	"github.com/viforest/viforest/internal/logging"
	"github.com/viforest/viforest/internal/metrics"
)

// fakeDevice records calls and fails the names listed in failUpload /
// failDownload.
type fakeDevice struct {
	mu           sync.Mutex
	uploads      []string
	downloads    []string
	targets      []string
	failUpload   map[string]error
	failDownload map[string]error
	cancelAfter  int
	cancel       context.CancelFunc
}

func (f *fakeDevice) ChunkSize() int64 { return 4 }

func (f *fakeDevice) UploadFile(ctx context.Context, addr, path, appType, folderID string, onChunk device.ChunkFunc) error {
	f.mu.Lock()
	f.uploads = append(f.uploads, filepath.Base(path))
	n := len(f.uploads)
	f.mu.Unlock()

	if f.cancel != nil && n == f.cancelAfter {
		f.cancel()
	}
	if err := f.failUpload[filepath.Base(path)]; err != nil {
		return err
	}
	onChunk(device.UploadTransfer{FileName: filepath.Base(path), ChunkCount: 2, ChunksAcknowledged: 1})
	onChunk(device.UploadTransfer{FileName: filepath.Base(path), ChunkCount: 2, ChunksAcknowledged: 2})
	return nil
}

func (f *fakeDevice) DownloadTo(ctx context.Context, addr string, entry device.FileEntry, target string, onPhase device.PhaseFunc) (string, error) {
	if entry.IsDirectory {
		return "", &device.Error{Kind: device.KindLocal, Op: "download", Msg: "directories cannot be downloaded"}
	}
	f.mu.Lock()
	f.downloads = append(f.downloads, entry.EntryID)
	f.targets = append(f.targets, target)
	f.mu.Unlock()

	if err := f.failDownload[entry.EntryID]; err != nil {
		return "", err
	}
	for _, p := range []device.Phase{device.PhasePackage, device.PhasePoll, device.PhaseFetch, device.PhaseDone} {
		onPhase(p, 0)
	}
	return target, nil
}

// recordingReporter counts Reporter calls.
type recordingReporter struct {
	NopReporter
	chunks []int
	done   []string
}

func (r *recordingReporter) UploadChunk(name string, acknowledged, total int) {
	r.chunks = append(r.chunks, acknowledged)
}

func (r *recordingReporter) UploadDone(name string, err error) {
	r.done = append(r.done, name)
}

func writeFiles(t *testing.T, names ...string) []string {
	t.Helper()
	dir := t.TempDir()
	var out []string
	for _, n := range names {
		p := filepath.Join(dir, n)
		if err := os.WriteFile(p, []byte("12345678"), 0644); err != nil {
			t.Fatal(err)
		}
		out = append(out, p)
	}
	return out
}

func TestUploadFiles_FailureDoesNotBlockNext(t *testing.T) {
	dev := &fakeDevice{failUpload: map[string]error{
		"b.pdf": &device.Error{Kind: device.KindDeviceRejected, Op: "upload_chunk"},
	}}
	rep := &recordingReporter{}
	m := metrics.New()
	o := NewOrchestrator(dev, nil, rep, m, logging.NewNopLogger())

	files := writeFiles(t, "a.pdf", "b.pdf", "c.pdf")
	res := o.UploadFiles(context.Background(), "10.0.0.1", files, Target{EntryID: "F1", OwnerAppType: "APP_DOC"})

	if len(dev.uploads) != 3 {
		t.Fatalf("expected all 3 files attempted, got %v", dev.uploads)
	}
	if res.Succeeded() != 2 {
		t.Errorf("expected 2 successes, got %d", res.Succeeded())
	}
	failed := res.Failed()
	if len(failed) != 1 || failed[0].Name != "b.pdf" || failed[0].Kind != device.KindDeviceRejected {
		t.Errorf("unexpected failures: %+v", failed)
	}
	if len(rep.done) != 3 || len(rep.chunks) != 4 {
		t.Errorf("reporter saw done=%v chunks=%v", rep.done, rep.chunks)
	}

	stats := o.Queue().GetStats()
	if stats.Completed != 2 || stats.Failed != 1 {
		t.Errorf("unexpected queue stats: %+v", stats)
	}
}

func TestUploadFiles_CanceledStopsBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	dev := &fakeDevice{cancel: cancel, cancelAfter: 1}
	o := NewOrchestrator(dev, nil, nil, nil, nil)

	files := writeFiles(t, "a.pdf", "b.pdf", "c.pdf")
	res := o.UploadFiles(ctx, "10.0.0.1", files, Target{EntryID: "F1", OwnerAppType: "APP_DOC"})

	if len(dev.uploads) != 1 {
		t.Errorf("no upload should start after cancel, got %v", dev.uploads)
	}
	if len(res.Items) != 3 || res.Succeeded() != 1 {
		t.Fatalf("unexpected result: %+v", res.Items)
	}
	for _, it := range res.Items[1:] {
		if !errors.Is(it.Err, context.Canceled) {
			t.Errorf("item %s: expected canceled, got %v", it.Name, it.Err)
		}
	}
}

func TestDownloadEntries(t *testing.T) {
	dev := &fakeDevice{failDownload: map[string]error{
		"N3": &device.Error{Kind: device.KindTimeout, Op: "check_ready"},
	}}
	o := NewOrchestrator(dev, nil, nil, nil, nil)
	outDir := t.TempDir()

	entries := []device.FileEntry{
		{EntryID: "N1", DisplayName: "Meeting", OwnerAppType: "APP_NOTE"},
		{EntryID: "F1", DisplayName: "Docs", IsDirectory: true, OwnerAppType: "APP_DOC"},
		{EntryID: "N3", DisplayName: "Slow", OwnerAppType: "APP_NOTE"},
		{EntryID: "N2", DisplayName: "Meeting", OwnerAppType: "APP_NOTE"},
	}
	res := o.DownloadEntries(context.Background(), "10.0.0.1", entries, outDir)

	if len(res.Items) != 4 {
		t.Fatalf("expected 4 results, got %d", len(res.Items))
	}
	if res.Items[1].Kind != device.KindLocal {
		t.Errorf("directory should fail locally, got %+v", res.Items[1])
	}
	if res.Items[2].Kind != device.KindTimeout {
		t.Errorf("slow entry should time out, got %+v", res.Items[2])
	}
	if res.Succeeded() != 2 {
		t.Errorf("expected 2 successes, got %d", res.Succeeded())
	}

	// The two "Meeting" notes must not share a local path
	want := map[string]string{
		"N1": filepath.Join(outDir, "Meeting_N1.pdf"),
		"N2": filepath.Join(outDir, "Meeting_N2.pdf"),
	}
	for i, id := range dev.downloads {
		if w, ok := want[id]; ok && dev.targets[i] != w {
			t.Errorf("target for %s = %q, want %q", id, dev.targets[i], w)
		}
	}

	for _, task := range o.Queue().GetTasks() {
		if task.Name == "Meeting" && task.State == TaskCompleted && task.Phase != string(device.PhaseDone) {
			t.Errorf("completed task should record the last phase, got %q", task.Phase)
		}
	}
}
