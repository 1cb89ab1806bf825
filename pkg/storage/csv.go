package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/MrCodeEU/facetrack/pkg/attendance"
	"github.com/MrCodeEU/facetrack/pkg/logging"
	"github.com/google/uuid"
)

// Row is one durable attendance record.
type Row struct {
	ID        uuid.UUID
	Name      string
	Type      attendance.EventType
	Timestamp time.Time
}

// Sink is an append-only destination for attendance rows.
type Sink interface {
	Append(ctx context.Context, row Row) error
}

// Clearer is implemented by sinks that support a bulk wipe.
type Clearer interface {
	Clear(ctx context.Context) error
}

// NameDeleter is implemented by sinks that can drop one identity's rows.
type NameDeleter interface {
	DeleteName(ctx context.Context, name string) error
}

// CSVHeader is written at the top of every daily file.
var CSVHeader = []string{"Name", "Type", "Time"}

// CSVSink appends rows to one CSV file per day: YYYY-MM-DD_attendance.csv.
type CSVSink struct {
	dir string
	loc *time.Location

	mu sync.Mutex
}

// NewCSVSink creates dir if needed. Dates and times are written in loc.
func NewCSVSink(dir string, loc *time.Location) (*CSVSink, error) {
	if loc == nil {
		loc = time.Local
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create attendance directory: %w", err)
	}
	return &CSVSink{dir: dir, loc: loc}, nil
}

// PathFor returns the file holding rows for the day of t.
func (s *CSVSink) PathFor(t time.Time) string {
	return filepath.Join(s.dir, t.In(s.loc).Format("2006-01-02")+"_attendance.csv")
}

// Append writes row to its day's file, adding the header to an empty file.
func (s *CSVSink) Append(ctx context.Context, row Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.PathFor(row.Timestamp)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
	if err != nil {
		return fmt.Errorf("failed to open attendance file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat attendance file: %w", err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(CSVHeader); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
		logging.Infof("Created new attendance file: %s", path)
	}
	record := []string{row.Name, string(row.Type), row.Timestamp.In(s.loc).Format("15:04:05")}
	if err := w.Write(record); err != nil {
		return fmt.Errorf("failed to write attendance row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush attendance row: %w", err)
	}
	return nil
}

// ReadDay returns the data rows of the file for the day of t, without the
// header. A missing file yields no rows.
func (s *CSVSink) ReadDay(t time.Time) ([][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.PathFor(t))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open attendance file: %w", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse attendance file: %w", err)
	}
	if len(records) > 0 {
		records = records[1:]
	}
	return records, nil
}

// MultiSink fans a row out to several sinks. Every sink is tried; the
// first error is returned.
type MultiSink []Sink

// Append implements Sink.
func (m MultiSink) Append(ctx context.Context, row Row) error {
	var first error
	for _, s := range m {
		if err := s.Append(ctx, row); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Clear wipes every member sink that supports it.
func (m MultiSink) Clear(ctx context.Context) error {
	var first error
	for _, s := range m {
		if c, ok := s.(Clearer); ok {
			if err := c.Clear(ctx); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

// DeleteName drops name's rows from every member sink that supports it.
func (m MultiSink) DeleteName(ctx context.Context, name string) error {
	var first error
	for _, s := range m {
		if d, ok := s.(NameDeleter); ok {
			if err := d.DeleteName(ctx, name); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}
