package e2e

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// fleetQuerier reads back the points the fleet manager's influx sink wrote.
type fleetQuerier struct {
	bucket string
	client influxdb2.Client
	query  api.QueryAPI
}

func newFleetQuerier(url, org, bucket, token string) *fleetQuerier {
	c := influxdb2.NewClient(url, token)
	return &fleetQuerier{bucket: bucket, client: c, query: c.QueryAPI(org)}
}

// fluxFilter selects one measurement of the last five minutes, narrowed by
// tag equality. Tags are sorted so the query text is stable.
func fluxFilter(bucket, measurement string, tags map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `from(bucket:%q) |> range(start:-5m) |> filter(fn: (r) => r._measurement == %q`, bucket, measurement)
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, ` and r.%s == %q`, k, tags[k])
	}
	b.WriteString(")")
	return b.String()
}

// count returns the number of records matching the filter.
func (q *fleetQuerier) count(ctx context.Context, measurement string, tags map[string]string) (int, error) {
	res, err := q.query.Query(ctx, fluxFilter(q.bucket, measurement, tags))
	if err != nil {
		return 0, err
	}
	defer res.Close()
	n := 0
	for res.Next() {
		n++
	}
	return n, res.Err()
}

// waitFor polls until at least one record matches. The influx sink writes
// asynchronously so the point may lag behind the order state.
func (q *fleetQuerier) waitFor(ctx context.Context, measurement string, tags map[string]string, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	for {
		n, err := q.count(ctx, measurement, tags)
		if err == nil && n > 0 {
			return n, nil
		}
		if time.Now().After(deadline) {
			if err == nil {
				err = fmt.Errorf("no %s points for %v", measurement, tags)
			}
			return 0, err
		}
		time.Sleep(200 * time.Millisecond)
	}
}

func (q *fleetQuerier) close() { q.client.Close() }
