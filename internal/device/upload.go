package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strconv"

	"github.com/viforest/viforest/internal/constants"
	"github.com/viforest/viforest/internal/hashing"
	"github.com/viforest/viforest/internal/http"
	"github.com/viforest/viforest/internal/util/buffers"
)

// ChunkFunc is called after each chunk the device acknowledges.
type ChunkFunc func(t UploadTransfer)

// ChunkCount returns the number of chunks a file of size bytes is split
// into. An empty file still takes one (empty) chunk so the device creates it.
func ChunkCount(size, chunkSize int64) int {
	if size <= 0 {
		return 1
	}
	return int((size + chunkSize - 1) / chunkSize)
}

// Upload is UploadFile reduced to success/failure.
func (c *Client) Upload(ctx context.Context, addr, path, appType, folderID string) bool {
	return c.UploadFile(ctx, addr, path, appType, folderID, nil) == nil
}

// UploadFile sends the file at path into folder folderID of appType.
//
// The content hash and transfer id are computed once. Chunks go out strictly
// in file-offset order and each must be acknowledged before the next is
// sent; the first failure abandons the upload. No abort call exists in the
// device protocol, so a partially received file is left to the device.
func (c *Client) UploadFile(ctx context.Context, addr, path, appType, folderID string, onChunk ChunkFunc) error {
	info, err := os.Stat(path)
	if err != nil {
		return newError(KindLocal, "upload", "cannot stat file", err)
	}
	if info.IsDir() {
		return newError(KindLocal, "upload", "directories cannot be uploaded", nil)
	}

	digest, size, err := hashing.HashFile(path)
	if err != nil {
		return newError(KindLocal, "hash", "", err)
	}

	t := UploadTransfer{
		Path:        path,
		FileName:    filepath.Base(path),
		Size:        size,
		ContentHash: digest,
		TransferID:  hashing.TransferID(digest, c.now()),
		ChunkCount:  ChunkCount(size, c.opts.ChunkSize),
	}

	f, err := os.Open(path)
	if err != nil {
		return newError(KindLocal, "upload", "cannot open file", err)
	}
	defer f.Close()

	var buf []byte
	if c.opts.ChunkSize == constants.UploadChunkSize {
		pooled := buffers.GetChunkBuffer()
		defer buffers.PutChunkBuffer(pooled)
		buf = *pooled
	} else {
		buf = make([]byte, c.opts.ChunkSize)
	}

	log := c.logger.With().
		Str("addr", addr).
		Str("file", t.FileName).
		Str("transfer_id", t.TransferID).
		Logger()
	log.Debug().Int64("size", size).Int("chunks", t.ChunkCount).Msg("starting upload")

	var sent int64
	for i := 0; i < t.ChunkCount; i++ {
		n, err := io.ReadFull(f, buf)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			return newError(KindLocal, "upload", "read failed", err)
		}
		sent += int64(n)
		if n == 0 && size > 0 {
			return newError(KindLocal, "upload", "file shrank while uploading", nil)
		}

		if err := c.sendChunk(ctx, addr, &t, i, buf[:n], appType, folderID); err != nil {
			log.Warn().Int("chunk", i).Int("of", t.ChunkCount).Err(err).Msg("chunk rejected, upload abandoned")
			return err
		}

		t.ChunksAcknowledged++
		c.metrics.RecordChunk(n)
		if onChunk != nil {
			onChunk(t)
		}
	}

	if sent != size {
		return newError(KindLocal, "upload", fmt.Sprintf("file changed while uploading (%d of %d bytes sent)", sent, size), nil)
	}

	log.Debug().Msg("upload complete")
	return nil
}

func (c *Client) sendChunk(ctx context.Context, addr string, t *UploadTransfer, index int, chunk []byte, appType, folderID string) error {
	body, contentType, err := chunkBody(t, index, chunk, appType, folderID)
	if err != nil {
		return newError(KindLocal, "upload_chunk", "cannot build request", err)
	}

	req := &http.Request{
		Method:      "POST",
		URL:         c.deviceURL(addr, constants.PathUploadChunk, ""),
		Body:        body,
		ContentType: contentType,
		Timeout:     c.opts.ChunkTimeout,
	}

	start := c.now()
	resp, err := c.sender.Send(ctx, req)
	if err != nil {
		c.metrics.RecordDeviceRequest("upload_chunk", false, c.now().Sub(start))
		return transportError("upload_chunk", err, KindTimeout)
	}
	_, err = decodeEnvelope("upload_chunk", resp)
	c.metrics.RecordDeviceRequest("upload_chunk", err == nil, c.now().Sub(start))
	return err
}

// chunkBody builds the multipart form for one chunk. Field order follows the
// device's form parser.
func chunkBody(t *UploadTransfer, index int, chunk []byte, appType, folderID string) ([]byte, string, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	fields := []struct{ name, value string }{
		{"chunkIndex", strconv.Itoa(index)},
		{"totalChunks", strconv.Itoa(t.ChunkCount)},
		{"fileMd5", t.ContentHash},
		{"fileId", t.TransferID},
		{"fileName", t.FileName},
		{"appType", appType},
		{"folderId", folderID},
	}
	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", err
		}
	}

	part, err := w.CreateFormFile("file", fmt.Sprintf("chunk_%d_%s", index, t.FileName))
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(chunk); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return body.Bytes(), w.FormDataContentType(), nil
}
