// Package export turns tabular results into files. Formats are
// pluggable: the CSV writer is built in, and plugins may register
// additional formats at runtime.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Export errors.
var (
	// ErrUnknownFormat indicates no exporter is registered for the format.
	ErrUnknownFormat = errors.New("unknown export format")

	// ErrNoColumns indicates a table without a header row.
	ErrNoColumns = errors.New("table has no columns")
)

// Table is the exchange shape between producers and exporters.
type Table struct {
	Columns []string
	Rows    [][]any
}

// Func writes a table to the file at path.
type Func func(path string, table Table) error

// Service maps format names to exporters. Safe for concurrent use.
type Service struct {
	mu        sync.RWMutex
	exporters map[string]Func
	logger    *zap.Logger
}

// NewService creates an export service with the CSV exporter
// pre-registered.
func NewService(logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		exporters: make(map[string]Func),
		logger:    logger,
	}
	s.Register("csv", writeCSV)
	return s
}

// Register adds (or replaces) the exporter for a format. Format names
// are lowercase without a leading dot.
func (s *Service) Register(format string, fn Func) {
	format = normalizeFormat(format)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.exporters[format]; exists {
		s.logger.Warn("export format replaced", zap.String("format", format))
	}
	s.exporters[format] = fn
}

// Formats returns the registered format names, sorted.
func (s *Service) Formats() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.exporters))
	for f := range s.exporters {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Export writes the table to path using the exporter for format. An
// empty format is inferred from the path's extension.
func (s *Service) Export(path, format string, table Table) error {
	if len(table.Columns) == 0 {
		return ErrNoColumns
	}
	if format == "" {
		format = strings.TrimPrefix(filepath.Ext(path), ".")
	}
	format = normalizeFormat(format)

	s.mu.RLock()
	fn, ok := s.exporters[format]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}

	if err := fn(path, table); err != nil {
		return fmt.Errorf("exporting %s as %s: %w", path, format, err)
	}
	s.logger.Info("table exported",
		zap.String("path", path),
		zap.String("format", format),
		zap.Int("rows", len(table.Rows)))
	return nil
}

func normalizeFormat(format string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(format), "."))
}

// writeCSV is the built-in CSV exporter.
func writeCSV(path string, table Table) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	w := csv.NewWriter(f)
	if err := w.Write(table.Columns); err != nil {
		f.Close()
		return err
	}

	record := make([]string, len(table.Columns))
	for _, row := range table.Rows {
		for i := range record {
			if i < len(row) {
				record[i] = formatCell(row[i])
			} else {
				record[i] = ""
			}
		}
		if err := w.Write(record); err != nil {
			f.Close()
			return err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// formatCell renders one value for CSV output.
func formatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}
