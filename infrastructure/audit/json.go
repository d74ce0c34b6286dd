package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	domainaudit "github.com/felixgeelhaar/ideaflow/domain/audit"
)

// JSONLog writes entries as JSON lines to an io.Writer.
//
// A JSONLog opened on a file with OpenJSONFile can also be queried and
// resumes its ID sequence from the existing content.
type JSONLog struct {
	mu      sync.Mutex
	writer  io.Writer
	encoder *json.Encoder
	path    string
	lastID  int64
	closed  bool
	now     func() time.Time
}

// NewJSONLog creates a write-only JSON lines audit log.
func NewJSONLog(writer io.Writer) *JSONLog {
	return &JSONLog{
		writer:  writer,
		encoder: json.NewEncoder(writer),
		now:     time.Now,
	}
}

// OpenJSONFile opens (or creates) a JSON lines file for appending.
func OpenJSONFile(path string) (*JSONLog, error) {
	entries, err := readJSONLines(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open audit file: %w", err)
	}

	l := NewJSONLog(f)
	l.path = path
	for _, e := range entries {
		if e.ID > l.lastID {
			l.lastID = e.ID
		}
	}
	return l, nil
}

// Record appends an entry as one JSON line.
func (l *JSONLog) Record(ctx context.Context, entry domainaudit.Entry) (domainaudit.Entry, error) {
	if err := ctx.Err(); err != nil {
		return domainaudit.Entry{}, err
	}

	entry, err := domainaudit.Normalize(entry, l.now().UTC())
	if err != nil {
		return domainaudit.Entry{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return domainaudit.Entry{}, domainaudit.ErrLogClosed
	}

	entry.ID = l.lastID + 1
	if err := l.encoder.Encode(entry); err != nil {
		return domainaudit.Entry{}, fmt.Errorf("write audit entry: %w", err)
	}
	l.lastID = entry.ID
	return entry, nil
}

// Query reads back matching entries. Only file-backed logs support it.
func (l *JSONLog) Query(ctx context.Context, filter domainaudit.Filter) ([]domainaudit.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.path == "" {
		return nil, domainaudit.ErrQueryUnsupported
	}

	l.mu.Lock()
	entries, err := readJSONLines(l.path)
	l.mu.Unlock()
	if err != nil {
		return nil, err
	}

	result := make([]domainaudit.Entry, 0)
	for _, e := range entries {
		if !filter.Matches(e) {
			continue
		}
		result = append(result, e)
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result, nil
}

// Close releases resources.
func (l *JSONLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	if closer, ok := l.writer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func readJSONLines(path string) ([]domainaudit.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []domainaudit.Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e domainaudit.Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("decode audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read audit file: %w", err)
	}
	return entries, nil
}

var _ domainaudit.Log = (*JSONLog)(nil)
