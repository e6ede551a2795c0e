package export

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func sampleTable() Table {
	return Table{
		Columns: []string{"date", "close", "volume"},
		Rows: [][]any{
			{"2026-01-02", 101.25, int64(250000)},
			{"2026-01-03", 99.5, int64(310000)},
		},
	}
}

func TestExportCSV(t *testing.T) {
	svc := NewService(nil)
	path := filepath.Join(t.TempDir(), "series.csv")

	if err := svc.Export(path, "", sampleTable()); err != nil {
		t.Fatalf("Export() = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("wrote %d lines, want 3: %q", len(lines), string(data))
	}
	if lines[0] != "date,close,volume" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "2026-01-02,101.25,250000" {
		t.Errorf("row 1 = %q", lines[1])
	}
}

func TestExportShortRowsPadded(t *testing.T) {
	svc := NewService(nil)
	path := filepath.Join(t.TempDir(), "ragged.csv")

	tbl := Table{
		Columns: []string{"a", "b", "c"},
		Rows:    [][]any{{"only"}},
	}
	if err := svc.Export(path, "csv", tbl); err != nil {
		t.Fatalf("Export() = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if lines[1] != "only,," {
		t.Errorf("padded row = %q, want %q", lines[1], "only,,")
	}
}

func TestExportUnknownFormat(t *testing.T) {
	svc := NewService(nil)
	err := svc.Export(filepath.Join(t.TempDir(), "out.xyz"), "", sampleTable())
	if !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("Export(.xyz) = %v, want ErrUnknownFormat", err)
	}
}

func TestExportNoColumns(t *testing.T) {
	svc := NewService(nil)
	err := svc.Export(filepath.Join(t.TempDir(), "out.csv"), "csv", Table{})
	if !errors.Is(err, ErrNoColumns) {
		t.Errorf("Export of empty table = %v, want ErrNoColumns", err)
	}
}

func TestRegisterCustomFormat(t *testing.T) {
	svc := NewService(nil)

	var gotPath string
	svc.Register("TSV", func(path string, table Table) error {
		gotPath = path
		return nil
	})

	formats := svc.Formats()
	if len(formats) != 2 || formats[0] != "csv" || formats[1] != "tsv" {
		t.Errorf("Formats() = %v, want [csv tsv]", formats)
	}

	path := filepath.Join(t.TempDir(), "out.tsv")
	if err := svc.Export(path, "", sampleTable()); err != nil {
		t.Fatalf("Export() = %v", err)
	}
	if gotPath != path {
		t.Errorf("custom exporter got path %q, want %q", gotPath, path)
	}
}

func TestFormatCell(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"string", "x", "x"},
		{"float no trailing zeros", 1.5, "1.5"},
		{"float integral", 2.0, "2"},
		{"int64", int64(9), "9"},
		{"bool", true, "true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatCell(tt.in); got != tt.want {
				t.Errorf("formatCell(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
