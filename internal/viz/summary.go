package viz

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
)

// Summary is the end-of-run report.
type Summary struct {
	RunID         string
	NAtom         int
	NRound        uint64
	Frames        int
	Elapsed       time.Duration
	ForceRMS      float64
	ForceVerified bool
	AvgKinetic    float64
	HasKinetic    bool
	FinalHBonds   float64
	Kinetic       []float64
}

type row struct{ label, value string }

func (s Summary) rows() []row {
	rows := []row{
		{"run", s.RunID},
		{"atoms", fmt.Sprint(s.NAtom)},
		{"rounds", fmt.Sprint(s.NRound)},
		{"frames", fmt.Sprint(s.Frames)},
		{"elapsed", s.Elapsed.Round(time.Millisecond).String()},
		{"hbonds", fmt.Sprintf("%.1f", s.FinalHBonds)},
	}
	if s.ForceVerified {
		rows = append(rows, row{"force rms", fmt.Sprintf("%.6f", s.ForceRMS)})
	}
	if s.HasKinetic {
		rows = append(rows, row{"avg kinetic", fmt.Sprintf("%.3f", s.AvgKinetic)})
	} else {
		rows = append(rows, row{"avg kinetic", "unavailable"})
	}
	return rows
}

// RenderSummary formats s as a boxed panel when styled is set and as plain
// aligned label and value columns otherwise.
func RenderSummary(s Summary, styled bool) string {
	rows := s.rows()
	width := 0
	for _, r := range rows {
		width = max(width, len(r.label))
	}

	var sb strings.Builder
	for i, r := range rows {
		label := fmt.Sprintf("%-*s", width, r.label)
		if styled {
			value := MetricValue.Render(r.value)
			if r.label == "avg kinetic" && !s.HasKinetic {
				value = StatusWarn.Render(r.value)
			}
			sb.WriteString(MetricLabel.Render(label) + "  " + value)
		} else {
			sb.WriteString(label + "  " + r.value)
		}
		if i < len(rows)-1 {
			sb.WriteString("\n")
		}
	}
	if len(s.Kinetic) > 1 {
		sb.WriteString("\n")
		if styled {
			sb.WriteString(MetricLabel.Render(fmt.Sprintf("%-*s", width, "kinetic")) + "  ")
		} else {
			sb.WriteString(fmt.Sprintf("%-*s", width, "kinetic") + "  ")
		}
		sb.WriteString(Sparkline(s.Kinetic, 40, styled))
	}

	if !styled {
		return sb.String()
	}
	return Panel.Render(lipgloss.JoinVertical(lipgloss.Left, Title.Render("run summary"), "", sb.String()))
}

// Plot draws values as an asciigraph chart.
func Plot(values []float64, caption string, width, height int) string {
	if len(values) == 0 {
		return Subtle.Render("no data to plot")
	}
	return asciigraph.Plot(values,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Caption(caption),
	)
}
