// Package viz renders run results for the terminal.
//
//   - [RenderSummary]: the end-of-run report, styled with lipgloss when
//     writing to a terminal and plain otherwise
//   - [Sparkline]: a one-line sketch of a series
//   - [Plot]: a full asciigraph chart of a series such as the kinetic energy
package viz
