package audit

import (
	"context"
	"errors"

	domainaudit "github.com/felixgeelhaar/ideaflow/domain/audit"
)

// MultiLog records to several logs. The first log is the primary: its
// stored entry (and ID) is returned, and queries are served by the first
// log that supports them.
type MultiLog struct {
	logs []domainaudit.Log
}

// NewMultiLog creates a log that writes to multiple logs.
func NewMultiLog(logs ...domainaudit.Log) *MultiLog {
	return &MultiLog{logs: logs}
}

// Record appends the entry to every log and joins their errors.
func (l *MultiLog) Record(ctx context.Context, entry domainaudit.Entry) (domainaudit.Entry, error) {
	var (
		primary domainaudit.Entry
		errs    []error
	)
	for i, log := range l.logs {
		stored, err := log.Record(ctx, entry)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if i == 0 {
			primary = stored
		}
	}
	return primary, errors.Join(errs...)
}

// Query queries the first log that supports it.
func (l *MultiLog) Query(ctx context.Context, filter domainaudit.Filter) ([]domainaudit.Entry, error) {
	for _, log := range l.logs {
		entries, err := log.Query(ctx, filter)
		if errors.Is(err, domainaudit.ErrQueryUnsupported) {
			continue
		}
		return entries, err
	}
	return nil, domainaudit.ErrQueryUnsupported
}

// Close closes all logs.
func (l *MultiLog) Close() error {
	var errs []error
	for _, log := range l.logs {
		if err := log.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ domainaudit.Log = (*MultiLog)(nil)
