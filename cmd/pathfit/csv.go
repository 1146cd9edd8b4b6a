package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/born-ml/pathfit/elasticnet"
)

// table is a numeric CSV file.
type table struct {
	rows, cols int
	data       []float64 // row-major
}

func readTable(filename string, header bool) (*table, error) {
	//nolint:gosec // G304: File path comes from the command line
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.ReuseRecord = true
	r.TrimLeadingSpace = true
	t := &table{}
	for line := 1; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filename, err)
		}
		if header && line == 1 {
			continue
		}
		if t.cols == 0 {
			t.cols = len(rec)
		}
		for i, field := range rec {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: column %d: %w", filename, line, i+1, err)
			}
			t.data = append(t.data, v)
		}
		t.rows++
	}
	if t.rows == 0 {
		return nil, fmt.Errorf("%s: no data rows", filename)
	}
	return t, nil
}

// split separates the last column as the target.
func (t *table) split() (x *table, y []float64) {
	x = &table{rows: t.rows, cols: t.cols - 1, data: make([]float64, 0, t.rows*(t.cols-1))}
	y = make([]float64, t.rows)
	for i := range t.rows {
		row := t.data[i*t.cols : (i+1)*t.cols]
		x.data = append(x.data, row[:t.cols-1]...)
		y[i] = row[t.cols-1]
	}
	return x, y
}

// inputs converts host data to the requested precision.
type inputs struct {
	single bool
}

func (in inputs) matrix(t *table) *elasticnet.Matrix {
	if in.single {
		return elasticnet.NewMatrix(t.rows, t.cols, elasticnet.RowMajor, toFloat32(t.data))
	}
	return elasticnet.NewMatrix(t.rows, t.cols, elasticnet.RowMajor, t.data)
}

func (in inputs) vector(v []float64) *elasticnet.Vector {
	if in.single {
		return elasticnet.NewVector(toFloat32(v))
	}
	return elasticnet.NewVector(v)
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

func writeColumns(w io.Writer, names []string, cols [][]float64) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(names); err != nil {
		return err
	}
	rec := make([]string, len(cols))
	for i := range cols[0] {
		for j, c := range cols {
			rec[j] = strconv.FormatFloat(c[i], 'g', -1, 64)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
