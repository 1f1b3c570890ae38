// Package charts renders interactive HTML charts with go-echarts.
package charts

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// ChartConfig holds configuration for charts.
type ChartConfig struct {
	Title      string   // Chart title
	Subtitle   string   // Chart subtitle
	YAxisLabel string   // Y-axis label
	XAxisLabel string   // X-axis label
	Width      string   // Chart width (e.g., "900px")
	Height     string   // Chart height (e.g., "500px")
	Theme      string   // Chart theme
	ShowLegend bool     // Show legend
	Horizontal bool     // Draw bars left to right
	Stacked    bool     // Stack multi-series bars
	Colors     []string // Custom colors
}

// DefaultChartConfig returns default chart configuration.
func DefaultChartConfig() ChartConfig {
	return ChartConfig{
		Width:      "900px",
		Height:     "500px",
		Theme:      "light",
		ShowLegend: true,
		Colors:     []string{"#5470C6", "#EE6666", "#91CC75", "#FAC858", "#73C0DE", "#3BA272", "#FC8452", "#9A60B4", "#EA7CCC"},
	}
}

// Charter is anything RenderPage can lay out.
type Charter = components.Charter

// DataPoint represents a single data point in a chart.
type DataPoint struct {
	Label string
	Value float64
}

// SeriesData represents a data series for multi-series charts.
type SeriesData struct {
	Name   string
	Points []DataPoint
}

// NewBarChart builds a bar chart with one bar per series point. All series share
// the labels of the first series.
func NewBarChart(series []SeriesData, config ChartConfig) (*charts.Bar, error) {
	if len(series) == 0 {
		return nil, fmt.Errorf("no data series provided")
	}
	if len(config.Colors) == 0 {
		config.Colors = DefaultChartConfig().Colors
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Width:  config.Width,
			Height: config.Height,
			Theme:  config.Theme,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    config.Title,
			Subtitle: config.Subtitle,
		}),
		charts.WithTooltipOpts(opts.Tooltip{
			Show:    opts.Bool(true),
			Trigger: "axis",
		}),
		charts.WithLegendOpts(opts.Legend{
			Show: opts.Bool(config.ShowLegend),
		}),
		charts.WithXAxisOpts(opts.XAxis{Name: config.XAxisLabel}),
		charts.WithYAxisOpts(opts.YAxis{Name: config.YAxisLabel}),
	)

	xLabels := make([]string, len(series[0].Points))
	for i, point := range series[0].Points {
		xLabels[i] = point.Label
	}
	bar.SetXAxis(xLabels)

	for i, s := range series {
		yData := make([]opts.BarData, len(s.Points))
		for j, point := range s.Points {
			yData[j] = opts.BarData{Value: point.Value}
		}

		seriesOpts := []charts.SeriesOpts{
			charts.WithLabelOpts(opts.Label{
				Show: opts.Bool(false),
			}),
			charts.WithItemStyleOpts(opts.ItemStyle{
				Color: config.Colors[i%len(config.Colors)],
			}),
		}
		if config.Stacked {
			seriesOpts = append(seriesOpts, charts.WithBarChartOpts(opts.BarChart{Stack: "total"}))
		}
		bar.AddSeries(s.Name, yData, seriesOpts...)
	}

	if config.Horizontal {
		bar.XYReversal()
	}
	return bar, nil
}

// RenderPage writes every chart to w as one HTML page.
func RenderPage(w io.Writer, title string, charters ...Charter) error {
	page := components.NewPage()
	page.SetPageTitle(title)
	page.AddCharts(charters...)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("failed to render chart page: %w", err)
	}
	return nil
}

// RenderBarChart creates an interactive bar chart HTML file.
func RenderBarChart(data []DataPoint, config ChartConfig, outputPath string) error {
	bar, err := NewBarChart([]SeriesData{{Name: config.YAxisLabel, Points: data}}, config)
	if err != nil {
		return err
	}

	f, err := createOutput(outputPath)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := bar.Render(f); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}

func createOutput(outputPath string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create chart directory: %w", err)
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create chart file: %w", err)
	}
	return f, nil
}

// OpenInBrowser opens the given file path in the default web browser.
func OpenInBrowser(filePath string) error {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}

	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", absPath)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", absPath)
	case "linux":
		cmd = exec.Command("xdg-open", absPath)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	return cmd.Start()
}
