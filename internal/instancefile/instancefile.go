// Package instancefile reads pricing problem documents from disk or stdin.
// The JSON document is the flat interchange format used by the one-shot solve
// mode; CSV loaders cover the common case of exporting stops from a
// spreadsheet or warehouse system.
package instancefile

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"vrppricing/internal/model"
)

// Document is one self-contained pricing call: an instance plus the dual
// prices of the current master iteration.
type Document struct {
	model.Instance
	DualValues map[string]float64  `json:"dual_values"`
	Options    *model.SolveOptions `json:"options,omitempty"`
}

// Read decodes a JSON document from r.
func Read(r io.Reader) (*Document, error) {
	var doc Document
	dec := json.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return &doc, nil
}

// Load reads a JSON document from path, with "-" meaning stdin.
func Load(path string) (*Document, error) {
	if path == "-" {
		return Read(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// LoadCustomersCSV reads customers from a CSV file with the header
// id,lat,lng,capacity,window_start,window_end. Window columns are RFC3339.
func LoadCustomersCSV(path string) ([]model.Customer, error) {
	rows, err := readCSV(path, []string{"id", "lat", "lng", "capacity", "window_start", "window_end"})
	if err != nil {
		return nil, err
	}
	out := make([]model.Customer, 0, len(rows))
	for i, rec := range rows {
		c := model.Customer{WindowStart: rec[4], WindowEnd: rec[5]}
		if c.ID, err = strconv.ParseInt(rec[0], 10, 64); err != nil {
			return nil, fmt.Errorf("%s row %d: id: %w", path, i+2, err)
		}
		if c.Lat, err = strconv.ParseFloat(rec[1], 64); err != nil {
			return nil, fmt.Errorf("%s row %d: lat: %w", path, i+2, err)
		}
		if c.Lng, err = strconv.ParseFloat(rec[2], 64); err != nil {
			return nil, fmt.Errorf("%s row %d: lng: %w", path, i+2, err)
		}
		if c.Demand, err = strconv.ParseFloat(rec[3], 64); err != nil {
			return nil, fmt.Errorf("%s row %d: capacity: %w", path, i+2, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// LoadWarehousesCSV reads warehouses from a CSV file with the header id,lat,lng.
func LoadWarehousesCSV(path string) ([]model.Warehouse, error) {
	rows, err := readCSV(path, []string{"id", "lat", "lng"})
	if err != nil {
		return nil, err
	}
	out := make([]model.Warehouse, 0, len(rows))
	for i, rec := range rows {
		w := model.Warehouse{}
		if w.ID, err = strconv.ParseInt(rec[0], 10, 64); err != nil {
			return nil, fmt.Errorf("%s row %d: id: %w", path, i+2, err)
		}
		if w.Lat, err = strconv.ParseFloat(rec[1], 64); err != nil {
			return nil, fmt.Errorf("%s row %d: lat: %w", path, i+2, err)
		}
		if w.Lng, err = strconv.ParseFloat(rec[2], 64); err != nil {
			return nil, fmt.Errorf("%s row %d: lng: %w", path, i+2, err)
		}
		out = append(out, w)
	}
	return out, nil
}

func readCSV(path string, header []string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = len(header)
	r.TrimLeadingSpace = true
	first, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%s: read header: %w", path, err)
	}
	for i, want := range header {
		if first[i] != want {
			return nil, fmt.Errorf("%s: header column %d: got %q, want %q", path, i+1, first[i], want)
		}
	}
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}
