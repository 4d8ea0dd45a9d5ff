// Package export writes maps to the interchange formats external tuning
// tools consume: CSV files with axis headers and the tab-delimited clipboard
// format.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"github.com/tosih/fuelcalc/pkg/axis"
	"github.com/tosih/fuelcalc/pkg/models"
)

// WriteCSV exports one map to a CSV file with metadata comment rows and
// real axis breakpoints as headers.
func WriteCSV(m *models.FuelMap, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	writer.Write([]string{fmt.Sprintf("# %s bank %s", m.Type, m.Bank)})
	writer.Write([]string{fmt.Sprintf("# Vehicle: %s", m.VehicleID)})
	writer.Write([]string{fmt.Sprintf("# Version: %s", m.Version)})
	writer.Write([]string{fmt.Sprintf("# Unit: %s", m.Unit)})
	writer.Write([]string{""})

	if m.Dimension == models.Dim1D {
		writer.Write([]string{"MAP(bar)", m.Unit})
		for _, i := range axis.ActiveIndices(m.MapAxis) {
			writer.Write([]string{
				fmt.Sprintf("%.2f", m.MapAxis.Values[i]),
				fmt.Sprintf("%.2f", m.Line[i]),
			})
		}
		return nil
	}

	header := []string{"MAP\\RPM"}
	rpmIdx := axis.ActiveIndices(m.RPMAxis)
	for _, j := range rpmIdx {
		header = append(header, fmt.Sprintf("%.0f", m.RPMAxis.Values[j]))
	}
	writer.Write(header)

	for _, i := range axis.ActiveIndices(m.MapAxis) {
		row := []string{fmt.Sprintf("%.2f", m.MapAxis.Values[i])}
		for _, j := range rpmIdx {
			row = append(row, fmt.Sprintf("%.2f", m.Matrix[i][j]))
		}
		writer.Write(row)
	}
	return nil
}

// ReadCSV parses a file written by WriteCSV back into a values grid. Axis
// layout is not restored; the caller matches the grid against the map it is
// importing into.
func ReadCSV(filename string) ([][]float64, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading CSV: %w", err)
	}

	dataStart := -1
	for i, record := range records {
		if len(record) > 0 && (strings.HasPrefix(record[0], "MAP\\RPM") || strings.HasPrefix(record[0], "MAP(bar)")) {
			dataStart = i + 1
			break
		}
	}
	if dataStart < 0 {
		return nil, fmt.Errorf("invalid CSV: data header not found")
	}

	var grid [][]float64
	for _, record := range records[dataStart:] {
		if len(record) < 2 {
			continue
		}
		row := make([]float64, 0, len(record)-1)
		for _, cell := range record[1:] {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid CSV value %q: %w", cell, err)
			}
			row = append(row, v)
		}
		grid = append(grid, row)
	}
	return grid, nil
}

// ExportAll writes every provided map into dir, one CSV per map
func ExportAll(maps []*models.FuelMap, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating export directory: %w", err)
	}

	spinner, _ := pterm.DefaultSpinner.Start("Exporting maps to CSV...")
	for _, m := range maps {
		name := fmt.Sprintf("%s_%s_%s.csv", m.VehicleID, m.Type, m.Bank)
		if err := WriteCSV(m, filepath.Join(dir, name)); err != nil {
			spinner.Warning(fmt.Sprintf("Failed to export %s bank %s", m.Type, m.Bank))
			continue
		}
	}
	spinner.Success(fmt.Sprintf("Maps exported to %s", dir))
	return nil
}
