// Package hashing computes the content digest and transfer identifier that
// accompany every chunk of an upload.
package hashing

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/viforest/viforest/internal/util/buffers"
)

// HashReader folds everything r yields into an MD5 digest and returns it as
// lowercase hex, along with the byte count.
func HashReader(r io.Reader) (string, int64, error) {
	buf := buffers.GetChunkBuffer()
	defer buffers.PutChunkBuffer(buf)

	h := md5.New()
	var total int64
	for {
		n, err := r.Read(*buf)
		if n > 0 {
			h.Write((*buf)[:n])
			total += int64(n)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", total, err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), total, nil
}

// HashFile returns the MD5 hex digest and size of the file at path.
// The digest depends only on the file's bytes, never on its name.
func HashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	digest, size, err := HashReader(f)
	if err != nil {
		return "", 0, fmt.Errorf("failed to hash file: %w", err)
	}
	return digest, size, nil
}

// TransferID derives the upload identifier: the digest followed by the
// Unix-millisecond timestamp.
func TransferID(digest string, now time.Time) string {
	return digest + strconv.FormatInt(now.UnixMilli(), 10)
}
