package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/barchart"
	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/confeed/internal/model"
)

const (
	activityHours       = 12
	activityChartHeight = 8
)

// ActivityChart shows loaded tweets per hour as a bar chart.
type ActivityChart struct {
	hours  int
	counts map[time.Time]int // keyed by UTC hour
}

// NewActivityChart creates a chart covering the last hours hours.
func NewActivityChart(hours int) *ActivityChart {
	if hours <= 0 {
		hours = activityHours
	}
	return &ActivityChart{hours: hours, counts: make(map[time.Time]int)}
}

// Add counts tweets into their hour buckets.
func (c *ActivityChart) Add(tweets []model.Tweet) {
	for _, t := range tweets {
		c.counts[t.CreatedAt.UTC().Truncate(time.Hour)]++
	}
}

// Buckets returns per-hour counts, oldest first, for the window ending at the
// hour containing now.
func (c *ActivityChart) Buckets(now time.Time) []int {
	end := now.UTC().Truncate(time.Hour)
	out := make([]int, c.hours)
	for i := range out {
		hour := end.Add(-time.Duration(c.hours-1-i) * time.Hour)
		out[i] = c.counts[hour]
	}
	return out
}

// Render draws the chart with a title line and a legend line.
func (c *ActivityChart) Render(now time.Time, width, height int) string {
	if width < 10 || height < 3 {
		return ""
	}
	buckets := c.Buckets(now)

	maxCount, total := 0, 0
	for _, n := range buckets {
		total += n
		maxCount = max(maxCount, n)
	}

	left := "Activity (tweets/hour)"
	right := fmt.Sprintf("Max: %d | Total: %d", maxCount, total)
	header := left
	if spacer := width - len(left) - len(right); spacer > 0 {
		header = left + strings.Repeat(" ", spacer) + right
	}

	const gap = 1
	barWidth := (width - gap*(len(buckets)-1)) / len(buckets)
	if barWidth < 1 {
		barWidth = 1
	}

	bc := barchart.New(width, height-2,
		barchart.WithBarGap(gap),
		barchart.WithBarWidth(barWidth),
		barchart.WithNoAxis(),
	)
	for _, n := range buckets {
		bc.Push(barchart.BarData{
			Label: "",
			Values: []barchart.BarValue{
				{Name: "tweets", Value: float64(n), Style: chartBarStyle},
			},
		})
	}
	bc.Draw()

	oldest := now.UTC().Truncate(time.Hour).Add(-time.Duration(c.hours-1) * time.Hour)
	legendLeft := oldest.Local().Format("15:04")
	legendRight := "now"
	legend := legendLeft
	if spacer := width - len(legendLeft) - len(legendRight); spacer > 0 {
		legend = legendLeft + strings.Repeat(" ", spacer) + legendRight
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(header),
		bc.View(),
		mutedStyle.Render(legend),
	)
}
