// Package renderer draws calibration maps on the terminal
package renderer

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/tosih/fuelcalc/pkg/models"
)

// RenderMap displays a map with axis-labelled headers. displayMode selects
// between "values", "symbols" and "heatmap".
func RenderMap(m *models.FuelMap, displayMode string) {
	min, max := minMax(m)
	title := fmt.Sprintf("%s | bank %s | %s | Range: %.2f-%.2f %s",
		m.Type, m.Bank, shape(m), min, max, m.Unit)

	pterm.DefaultBox.WithTitle(title).WithTitleTopLeft().Println(BuildMapString(m, displayMode, min, max))
}

func shape(m *models.FuelMap) string {
	if m.Dimension == models.Dim1D {
		return fmt.Sprintf("%d points", m.MapAxis.Len())
	}
	return fmt.Sprintf("%dx%d", m.MapAxis.Len(), m.RPMAxis.Len())
}

// BuildMapString creates a formatted string representation of the map.
// Disabled axis positions render dimmed.
func BuildMapString(m *models.FuelMap, displayMode string, min, max float64) string {
	var result strings.Builder

	if m.Dimension == models.Dim1D {
		result.WriteString(" MAP(bar) |  " + m.Unit + "\n")
		result.WriteString("----------|------\n")
		for i, mapRel := range m.MapAxis.Values {
			label := fmt.Sprintf("  %6.2f  |", mapRel)
			cell := renderCell(m.Line[i], min, max, displayMode)
			if !m.MapAxis.Enabled[i] {
				label = pterm.FgGray.Sprintf("  %6.2f ×|", mapRel)
				cell = pterm.FgGray.Sprintf("%7.2f", m.Line[i])
			}
			result.WriteString(label + cell + "\n")
		}
		return result.String()
	}

	// Header: rpm breakpoints
	result.WriteString("  MAP\\RPM |")
	for j, rpm := range m.RPMAxis.Values {
		s := fmt.Sprintf("%7.0f", rpm)
		if !m.RPMAxis.Enabled[j] {
			s = pterm.FgGray.Sprint(s)
		}
		result.WriteString(s)
	}
	result.WriteString("\n")
	result.WriteString("----------|" + strings.Repeat("-", m.RPMAxis.Len()*7) + "\n")

	for i, mapRel := range m.MapAxis.Values {
		label := fmt.Sprintf("  %6.2f  |", mapRel)
		if !m.MapAxis.Enabled[i] {
			label = pterm.FgGray.Sprintf("  %6.2f ×|", mapRel)
		}
		result.WriteString(label)
		for j := range m.RPMAxis.Values {
			if !m.MapAxis.Enabled[i] || !m.RPMAxis.Enabled[j] {
				result.WriteString(pterm.FgGray.Sprintf("%7.2f", m.Matrix[i][j]))
				continue
			}
			result.WriteString(renderCell(m.Matrix[i][j], min, max, displayMode))
		}
		result.WriteString("\n")
	}

	if displayMode == "symbols" {
		result.WriteString("\nLegend: ")
		result.WriteString(pterm.FgCyan.Sprint("░") + " Low  ")
		result.WriteString(pterm.FgGreen.Sprint("▒") + " Med  ")
		result.WriteString(pterm.FgYellow.Sprint("▓") + " High  ")
		result.WriteString(pterm.FgRed.Sprint("█") + " Max")
	}
	return result.String()
}

func renderCell(value, min, max float64, displayMode string) string {
	switch displayMode {
	case "symbols":
		s := symbolFor(value, min, max)
		return "   " + s + s + "  "
	case "heatmap":
		return heatmapBlock(value, min, max) + "   "
	default:
		return colorFor(value, min, max).Sprintf("%7.2f", value)
	}
}

func heatmapBlock(value, min, max float64) string {
	if max == min {
		return pterm.BgGray.Sprint("    ")
	}

	normalized := (value - min) / (max - min)

	switch {
	case normalized < 0.2:
		return pterm.NewStyle(pterm.BgBlue, pterm.FgWhite).Sprint("▄▄▄▄")
	case normalized < 0.4:
		return pterm.NewStyle(pterm.BgCyan, pterm.FgBlack).Sprint("▄▄▄▄")
	case normalized < 0.6:
		return pterm.NewStyle(pterm.BgGreen, pterm.FgBlack).Sprint("▄▄▄▄")
	case normalized < 0.8:
		return pterm.NewStyle(pterm.BgYellow, pterm.FgBlack).Sprint("▄▄▄▄")
	default:
		return pterm.NewStyle(pterm.BgRed, pterm.FgWhite).Sprint("▄▄▄▄")
	}
}

func symbolFor(value, min, max float64) string {
	if max == min {
		return pterm.FgGray.Sprint("·")
	}

	normalized := (value - min) / (max - min)

	switch {
	case normalized < 0.25:
		return pterm.FgCyan.Sprint("░")
	case normalized < 0.5:
		return pterm.FgGreen.Sprint("▒")
	case normalized < 0.75:
		return pterm.FgYellow.Sprint("▓")
	default:
		return pterm.FgRed.Sprint("█")
	}
}

func colorFor(value, min, max float64) *pterm.Style {
	if max == min {
		return pterm.NewStyle(pterm.FgGray)
	}

	normalized := (value - min) / (max - min)

	switch {
	case normalized < 0.25:
		return pterm.NewStyle(pterm.FgCyan)
	case normalized < 0.5:
		return pterm.NewStyle(pterm.FgGreen)
	case normalized < 0.75:
		return pterm.NewStyle(pterm.FgYellow)
	default:
		return pterm.NewStyle(pterm.FgRed)
	}
}

// ListMapTypes displays the configured map types in a table
func ListMapTypes(configs []models.MapTypeConfig) {
	pterm.DefaultHeader.WithFullWidth().Println("Configured Map Types")

	data := [][]string{
		{"Type", "Name", "Shape", "Unit", "Range"},
	}
	for _, cfg := range configs {
		shape := fmt.Sprintf("%d", len(cfg.DefaultMapValues))
		if cfg.Dimension == models.Dim2D {
			shape = fmt.Sprintf("%dx%d", len(cfg.DefaultMapValues), len(cfg.DefaultRPMValues))
		}
		data = append(data, []string{
			string(cfg.Type),
			cfg.Name,
			shape,
			cfg.Unit,
			fmt.Sprintf("%g to %g", cfg.MinValue, cfg.MaxValue),
		})
	}

	pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func minMax(m *models.FuelMap) (float64, float64) {
	var vals []float64
	if m.Dimension == models.Dim1D {
		vals = m.Line
	} else {
		for _, row := range m.Matrix {
			vals = append(vals, row...)
		}
	}
	if len(vals) == 0 {
		return 0, 0
	}
	min, max := vals[0], vals[0]
	for _, v := range vals {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}
