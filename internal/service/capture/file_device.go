package capture

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FileDevice replays a pre-encoded audio file as if it were a live
// input, flushing fixed-size chunks on the flush interval. It stands in
// for a real microphone in cmd/ and in development environments.
type FileDevice struct {
	path      string
	chunkSize int

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	stopFn  sync.Once
	err     error
}

// NewFileDevice creates a device replaying the given file in chunks of
// chunkSize bytes.
func NewFileDevice(path string, chunkSize int) *FileDevice {
	if chunkSize <= 0 {
		chunkSize = 32 * 1024
	}
	return &FileDevice{path: path, chunkSize: chunkSize}
}

// Supports matches the requested MIME type against the file extension;
// a file device can only "encode" the container it already holds.
func (d *FileDevice) Supports(mimeType string) bool {
	switch strings.ToLower(filepath.Ext(d.path)) {
	case ".webm":
		return strings.Contains(mimeType, "webm")
	case ".mp4", ".m4a":
		return strings.Contains(mimeType, "mp4")
	case ".ogg", ".oga":
		return strings.Contains(mimeType, "ogg")
	case ".wav":
		return strings.Contains(mimeType, "wav")
	default:
		return false
	}
}

// Start reads the file and begins emitting chunks on the flush interval.
func (d *FileDevice) Start(ctx context.Context, mimeType string, flushInterval time.Duration) (<-chan []byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	data, err := os.ReadFile(d.path)
	if err != nil {
		return nil, err
	}

	d.running = true
	d.stopCh = make(chan struct{})
	d.stopFn = sync.Once{}
	d.err = nil

	out := make(chan []byte)
	stopCh := d.stopCh

	go func() {
		defer close(out)
		defer func() {
			d.mu.Lock()
			d.running = false
			d.mu.Unlock()
		}()

		ticker := time.NewTicker(flushInterval)
		defer ticker.Stop()

		offset := 0
		for offset < len(data) {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				// Flush whatever is still buffered as one last chunk.
				if offset < len(data) {
					out <- data[offset:]
				}
				return
			case <-ticker.C:
				end := offset + d.chunkSize
				if end > len(data) {
					end = len(data)
				}
				select {
				case out <- data[offset:end]:
					offset = end
				case <-ctx.Done():
					return
				case <-stopCh:
					if offset < len(data) {
						out <- data[offset:]
					}
					return
				}
			}
		}
	}()

	return out, nil
}

// Stop ends the replay, flushing the unread remainder first. Idempotent.
func (d *FileDevice) Stop() error {
	d.mu.Lock()
	stopCh := d.stopCh
	d.mu.Unlock()

	if stopCh == nil {
		return nil
	}
	d.stopFn.Do(func() { close(stopCh) })
	return nil
}

// Err always returns nil for a clean replay; a file is never "lost".
func (d *FileDevice) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}
