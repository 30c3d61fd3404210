package audit

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/marmos91/opcuad/internal/logger"
)

// Log appends events to a writer. A nil *Log discards everything, so
// callers do not need to check whether auditing is enabled.
type Log struct {
	mu      sync.Mutex
	closer  io.Closer
	encoder *cbor.Encoder
	closed  bool
}

// Open appends to the file at path, creating it and its directory as
// needed. The file is readable only by its owner.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &Log{closer: f, encoder: newEncoder(f)}, nil
}

// New writes events to w. Closing the log does not close w.
func New(w io.Writer) *Log {
	return &Log{encoder: newEncoder(w)}
}

// Record appends ev. Encoding failures are logged, never returned: an audit
// write must not fail the operation being audited.
func (l *Log) Record(ev Event) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	if err := l.encoder.Encode(ev); err != nil {
		logger.Warn("Audit record dropped", logger.KeyError, err, "kind", string(ev.Kind))
	}
}

// Close stops recording. It is safe to call more than once.
func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}
