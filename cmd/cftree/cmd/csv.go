package cmd

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// dataset is a CSV file split into the two matrices Build expects.
type dataset struct {
	continuousNames  []string
	categoricalNames []string
	continuous       [][]float64
	categorical      [][]string
}

func (d *dataset) rows() int {
	return max(len(d.continuous), len(d.categorical))
}

// readDataset reads a CSV file with a header row. Columns named in
// categoricalCols are kept as labels; every other column must parse as a
// float.
func readDataset(r io.Reader, categoricalCols []string) (*dataset, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("input has no header row")
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	wanted := make(map[string]bool, len(categoricalCols))
	for _, c := range categoricalCols {
		wanted[strings.TrimSpace(c)] = true
	}

	d := &dataset{}
	isCategorical := make([]bool, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if wanted[name] {
			isCategorical[i] = true
			d.categoricalNames = append(d.categoricalNames, name)
			delete(wanted, name)
		} else {
			d.continuousNames = append(d.continuousNames, name)
		}
	}
	for name := range wanted {
		return nil, fmt.Errorf("categorical column %q not found in header", name)
	}

	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading line %d: %w", line, err)
		}

		cont := make([]float64, 0, len(d.continuousNames))
		cat := make([]string, 0, len(d.categoricalNames))
		for i, field := range record {
			if isCategorical[i] {
				cat = append(cat, strings.TrimSpace(field))
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %q: %w", line, header[i], err)
			}
			cont = append(cont, v)
		}
		if len(d.continuousNames) > 0 {
			d.continuous = append(d.continuous, cont)
		}
		if len(d.categoricalNames) > 0 {
			d.categorical = append(d.categorical, cat)
		}
	}
	return d, nil
}
