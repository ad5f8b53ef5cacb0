package advisor

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api"
	"go.uber.org/zap"
)

// LatestRecommendation is one row of GET /v1/recommendations/latest.
type LatestRecommendation struct {
	FieldID           string  `json:"field_id,omitempty"`
	Status            string  `json:"status"`
	WaterAmountLiters float64 `json:"water_amount_liters"`
	Time              string  `json:"time"` // RFC3339
}

type latestParams struct {
	FieldID   string
	Minutes   int
	Limit     int
	TimeoutMS int
}

func parseLatest(r *http.Request) latestParams {
	q := r.URL.Query()
	get := func(k string, def, lo, hi int) int {
		if v := strings.TrimSpace(q.Get(k)); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return min(max(n, lo), hi)
			}
		}
		return def
	}
	return latestParams{
		FieldID:   strings.TrimSpace(q.Get("field_id")),
		Minutes:   get("minutes", 1440, 1, 30*24*60),
		Limit:     get("limit", 20, 1, 500),
		TimeoutMS: get("timeout_ms", 2000, 200, 5000),
	}
}

func buildLatestFlux(bucket string, p latestParams) string {
	var field string
	if p.FieldID != "" {
		field = fmt.Sprintf("\n  |> filter(fn: (r) => r.field_id == %q)", p.FieldID)
	}
	return fmt.Sprintf(`
from(bucket: %q)
  |> range(start: -%dm)
  |> filter(fn: (r) => r._measurement == %q and r.status != "error")%s
  |> filter(fn: (r) => r._field == "water_amount_liters")
  |> keep(columns: ["_time","_value","field_id","status"])
  |> group()
  |> sort(columns: ["_time"], desc: true)
  |> limit(n:%d)
`, bucket, p.Minutes, Measurement, field, p.Limit)
}

// NewLatestHandler serves the recommendations recorded in Influx, newest
// first. Query failures answer an empty list with an X-Error header.
func NewLatestHandler(q api.QueryAPI, bucket string, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := parseLatest(r)
		ctx, cancel := context.WithTimeout(r.Context(), time.Duration(p.TimeoutMS)*time.Millisecond)
		defer cancel()

		out := make([]LatestRecommendation, 0, p.Limit)
		res, err := q.Query(ctx, buildLatestFlux(bucket, p))
		if err != nil {
			log.Warn("influx query failed", zap.Error(err))
			w.Header().Set("X-Error", "influx-query-error")
			writeJSON(w, http.StatusOK, out)
			return
		}
		defer func() { _ = res.Close() }()

		for res.Next() {
			rec := res.Record()
			row := LatestRecommendation{Time: rec.Time().UTC().Format(time.RFC3339)}
			switch v := rec.Value().(type) {
			case float64:
				row.WaterAmountLiters = v
			case int64:
				row.WaterAmountLiters = float64(v)
			}
			if s, ok := rec.ValueByKey("field_id").(string); ok {
				row.FieldID = s
			}
			if s, ok := rec.ValueByKey("status").(string); ok {
				row.Status = s
			}
			out = append(out, row)
		}
		if res.Err() != nil {
			w.Header().Set("X-Error", "influx-iter-error")
		}
		writeJSON(w, http.StatusOK, out)
	})
}
