package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Column names of the master dataset.
const (
	ColMedia        = "media"
	ColMediaBrand   = "media_brand"
	ColTerpene      = "terpene"
	ColTerpeneBrand = "terpene_brand"
	ColTerpenePct   = "terpene_pct"
	ColTotalPotency = "total_potency"
	ColD9THC        = "d9_thc"
	ColD8THC        = "d8_thc"
	ColTemperature  = "temperature"
	ColViscosity    = "viscosity"
	ColStage        = "measurement_stage"
	ColTimestamp    = "timestamp"
)

// MasterColumns is the header written to a new master dataset.
var MasterColumns = append([]string{
	ColMedia, ColMediaBrand, ColTerpene, ColTerpeneBrand,
	ColTerpenePct, ColTotalPotency, ColD9THC, ColD8THC,
	ColTemperature, ColViscosity, ColStage, ColTimestamp,
}, KnownCompounds...)

// ReadCSV parses a measurement table. Header names are matched
// case-insensitively; unknown columns are ignored. Empty, "nan" and
// unparseable numeric cells are treated as missing.
func ReadCSV(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	cols := make([]string, len(header))
	for i, h := range header {
		cols[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	}

	var records []Record
	line := 1
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}

		records = append(records, parseRow(cols, header, row))
	}

	return records, nil
}

func parseRow(cols, header, row []string) Record {
	var rec Record
	for i, col := range cols {
		if i >= len(row) {
			break
		}
		cell := strings.TrimSpace(row[i])

		switch col {
		case ColMedia:
			rec.Media = cell
		case ColMediaBrand:
			rec.MediaBrand = cell
		case ColTerpene:
			rec.Terpene = cell
		case ColTerpeneBrand:
			rec.TerpeneBrand = cell
		case ColTerpenePct:
			rec.TerpenePct = parseFloat(cell)
		case ColTotalPotency:
			rec.TotalPotency = parseFloat(cell)
		case ColD9THC:
			rec.D9THC = parseFloat(cell)
		case ColD8THC:
			rec.D8THC = parseFloat(cell)
		case ColTemperature:
			rec.Temperature = parseFloat(cell)
		case ColViscosity:
			rec.Viscosity = parseFloat(cell)
		case ColStage:
			rec.Stage = cell
		case ColTimestamp:
			if ts, err := time.Parse(time.RFC3339, cell); err == nil {
				rec.Timestamp = ts
			}
		default:
			name, ok := CanonicalCompound(header[i])
			if !ok {
				continue
			}
			if v := parseFloat(cell); v.Valid {
				if rec.Composition == nil {
					rec.Composition = make(map[string]float64)
				}
				rec.Composition[name] = v.V
			}
		}
	}

	return rec
}

func parseFloat(cell string) Float {
	if cell == "" || strings.EqualFold(cell, "nan") {
		return None
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return None
	}

	return Some(v)
}

// LoadCSV reads a measurement table from a file.
func LoadCSV(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ReadCSV(f)
}

// WriteCSV writes records with the given header.
func WriteCSV(w io.Writer, header []string, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, rec := range records {
		if err := cw.Write(formatRow(header, rec)); err != nil {
			return err
		}
	}
	cw.Flush()

	return cw.Error()
}

func formatRow(header []string, rec Record) []string {
	row := make([]string, len(header))
	for i, h := range header {
		switch strings.ToLower(h) {
		case ColMedia:
			row[i] = rec.Media
		case ColMediaBrand:
			row[i] = rec.MediaBrand
		case ColTerpene:
			row[i] = rec.Terpene
		case ColTerpeneBrand:
			row[i] = rec.TerpeneBrand
		case ColTerpenePct:
			row[i] = formatFloat(rec.TerpenePct)
		case ColTotalPotency:
			row[i] = formatFloat(rec.TotalPotency)
		case ColD9THC:
			row[i] = formatFloat(rec.D9THC)
		case ColD8THC:
			row[i] = formatFloat(rec.D8THC)
		case ColTemperature:
			row[i] = formatFloat(rec.Temperature)
		case ColViscosity:
			row[i] = formatFloat(rec.Viscosity)
		case ColStage:
			row[i] = rec.Stage
		case ColTimestamp:
			if !rec.Timestamp.IsZero() {
				row[i] = rec.Timestamp.UTC().Format(time.RFC3339)
			}
		default:
			if name, ok := CanonicalCompound(h); ok {
				if v, ok := rec.Composition[name]; ok {
					row[i] = strconv.FormatFloat(v, 'g', -1, 64)
				}
			}
		}
	}

	return row
}

func formatFloat(f Float) string {
	if !f.Valid {
		return ""
	}

	return strconv.FormatFloat(f.V, 'g', -1, 64)
}

// AppendMaster appends records to the master dataset at path, creating it
// with MasterColumns if it does not exist. Existing rows and column order are
// preserved. If the existing header lacks master columns, the file is
// rewritten with those columns added, through a temp file and rename.
func AppendMaster(path string, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	existing, header, err := readExisting(path)
	if err != nil {
		return err
	}

	if header == nil {
		return writeAtomic(path, MasterColumns, records)
	}

	missing := missingColumns(header)
	if len(missing) > 0 {
		header = append(header, missing...)
		return writeAtomic(path, header, append(existing, records...))
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(f)
	for _, rec := range records {
		if err := cw.Write(formatRow(header, rec)); err != nil {
			f.Close()
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}

func readExisting(path string) ([]Record, []string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	header, err := csv.NewReader(f).Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read master header: %w", err)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, nil, err
	}
	records, err := ReadCSV(f)
	if err != nil {
		return nil, nil, err
	}

	return records, header, nil
}

func missingColumns(header []string) []string {
	have := make([]string, len(header))
	for i, h := range header {
		have[i] = strings.ToLower(strings.TrimSpace(h))
	}

	var missing []string
	for _, c := range MasterColumns {
		if !slices.Contains(have, strings.ToLower(c)) {
			missing = append(missing, c)
		}
	}

	return missing
}

func writeAtomic(path string, header []string, records []Record) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".master-*.csv")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := WriteCSV(tmp, header, records); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), path)
}
