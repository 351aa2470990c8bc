package export

import (
	"fmt"
	"io"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/kilianp07/agvfleet/core/metrics/usage"
)

// WriteHTML renders the records as a standalone HTML page with a bar chart
// of the distance driven per day, one series per vehicle.
func WriteHTML(w io.Writer, title string, recs []usage.Record) error {
	days, vehicles, dist := pivot(recs)

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Day"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Distance"}),
	)
	bar.SetXAxis(days)
	for _, v := range vehicles {
		data := make([]opts.BarData, len(days))
		for i, d := range days {
			data[i] = opts.BarData{Value: dist[v][d]}
		}
		bar.AddSeries(v, data)
	}
	if err := bar.Render(w); err != nil {
		return fmt.Errorf("render usage chart: %w", err)
	}
	return nil
}

// pivot groups the records by day and vehicle. Days and vehicles are
// sorted; a vehicle without a record on a day drove zero.
func pivot(recs []usage.Record) (days, vehicles []string, dist map[string]map[string]int64) {
	dist = map[string]map[string]int64{}
	seenDay := map[string]bool{}
	for _, r := range recs {
		d := r.Date.Format("2006-01-02")
		if !seenDay[d] {
			seenDay[d] = true
			days = append(days, d)
		}
		if dist[r.Vehicle] == nil {
			dist[r.Vehicle] = map[string]int64{}
			vehicles = append(vehicles, r.Vehicle)
		}
		dist[r.Vehicle][d] += r.Distance
	}
	sort.Strings(days)
	sort.Strings(vehicles)
	return days, vehicles, dist
}
