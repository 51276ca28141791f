package device

import (
	"encoding/json"
	"time"
)

// FileEntry is one item in a device folder listing.
//
// EntryID is assigned once, when the listing is mapped: the device's noteId
// when present, otherwise "<appType>-<fileName>". Nothing outside this
// package looks at raw listing fields.
type FileEntry struct {
	EntryID      string    `json:"entryId"`
	DisplayName  string    `json:"displayName"`
	IsDirectory  bool      `json:"isDirectory"`
	OwnerAppType string    `json:"ownerAppType"`
	ParentID     string    `json:"parentId,omitempty"`
	ModifiedAt   time.Time `json:"modifiedAt"`
	SizeBytes    int64     `json:"sizeBytes"`
	MediaFormat  string    `json:"mediaFormat,omitempty"`
	Encrypted    bool      `json:"encrypted,omitempty"`
	IsScreenshot bool      `json:"isScreenshot,omitempty"`
}

// Capacity is the device storage summary. The string fields are the
// device's own human-readable renderings.
type Capacity struct {
	UsedBytes  int64
	FreeBytes  int64
	TotalBytes int64
	Used       string
	Free       string
	Total      string
}

// UploadTransfer describes one file upload. It lives only for the duration
// of UploadFile and is handed to the chunk callback after every
// acknowledged chunk.
type UploadTransfer struct {
	Path               string
	FileName           string
	Size               int64
	ContentHash        string
	TransferID         string
	ChunkCount         int
	ChunksAcknowledged int
}

// DownloadTicket is created by Package, resolved by polling and consumed by
// Fetch.
type DownloadTicket struct {
	Source       FileEntry
	PackagedPath string
	Ready        bool
}

// envelope is the JSON wrapper every device endpoint except /download uses.
type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// wireEntry is a listing item as the device sends it. Numeric fields are
// decoded as float64 because firmware versions disagree on integer encoding.
type wireEntry struct {
	AppType      string  `json:"appType"`
	Encryption   bool    `json:"encryption"`
	FileName     string  `json:"fileName"`
	IsFolder     bool    `json:"isFolder"`
	IsScreenshot bool    `json:"isScreenshot"`
	IsSelect     bool    `json:"isSelect"`
	NoteID       string  `json:"noteId"`
	NotePID      string  `json:"notePId"`
	Size         float64 `json:"size"`
	UpdateTime   float64 `json:"updateTime"`
	FileFormat   string  `json:"fileFormat"`
}

type wireCapacity struct {
	Current    float64 `json:"current"`
	CurrentStr string  `json:"currentStr"`
	Free       float64 `json:"free"`
	FreeStr    string  `json:"freeStr"`
	Total      float64 `json:"total"`
	TotalStr   string  `json:"totalStr"`
}

// mapEntry converts a wire listing item into a FileEntry.
func mapEntry(w wireEntry) FileEntry {
	id := w.NoteID
	if id == "" {
		id = w.AppType + "-" + w.FileName
	}

	e := FileEntry{
		EntryID:      id,
		DisplayName:  w.FileName,
		IsDirectory:  w.IsFolder,
		OwnerAppType: w.AppType,
		ParentID:     w.NotePID,
		SizeBytes:    int64(w.Size),
		MediaFormat:  w.FileFormat,
		Encrypted:    w.Encryption,
		IsScreenshot: w.IsScreenshot,
	}
	if w.UpdateTime > 0 {
		e.ModifiedAt = time.UnixMilli(int64(w.UpdateTime))
	}
	return e
}

func mapCapacity(w wireCapacity) *Capacity {
	return &Capacity{
		UsedBytes:  int64(w.Current),
		FreeBytes:  int64(w.Free),
		TotalBytes: int64(w.Total),
		Used:       w.CurrentStr,
		Free:       w.FreeStr,
		Total:      w.TotalStr,
	}
}
