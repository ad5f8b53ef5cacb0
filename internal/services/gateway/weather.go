package gateway

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"time"

	"github.com/LeonardoBeccarini/irrigation-advisor/internal/model/entities"
	"github.com/LeonardoBeccarini/irrigation-advisor/pkg/upstream"
)

type owmProvider struct {
	client *upstream.Client
	apiKey string
}

func (o *owmProvider) query(p entities.GeoPoint) url.Values {
	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%f", p.Latitude))
	q.Set("lon", fmt.Sprintf("%f", p.Longitude))
	q.Set("units", "metric")
	q.Set("appid", o.apiKey)
	return q
}

func (o *owmProvider) oneCall(ctx context.Context, p entities.GeoPoint, exclude string) (owmOneCall, error) {
	var out owmOneCall
	if o.client == nil || o.apiKey == "" {
		return out, errNotConfigured
	}
	q := o.query(p)
	q.Set("exclude", exclude)
	err := o.client.GetJSON(ctx, "/onecall", q, "", &out)
	return out, err
}

func (o *owmProvider) current(ctx context.Context, p entities.GeoPoint) (entities.WeatherSnapshot, error) {
	out, err := o.oneCall(ctx, p, "minutely,hourly,daily,alerts")
	if err != nil {
		return entities.WeatherSnapshot{}, err
	}
	if out.Current == nil {
		return entities.WeatherSnapshot{}, fmt.Errorf("owm: no current block")
	}
	c := out.Current
	// One Call non espone la radiazione solare: SolarRadiation resta nil
	// e l'ET0 usa il fattore neutro
	snap := entities.WeatherSnapshot{
		Temperature: round1(c.Temp),
		Humidity:    c.Humidity,
		WindSpeed:   round1(c.WindSpeed),
		ObservedAt:  time.Unix(c.Dt, 0).UTC(),
		Source:      entities.SourceProvider,
	}
	if c.Rain != nil {
		rain := c.Rain.OneHour
		snap.Precipitation = &rain
	}
	return snap, nil
}

func (o *owmProvider) forecast(ctx context.Context, p entities.GeoPoint, days int) (entities.Forecast, error) {
	out, err := o.oneCall(ctx, p, "current,minutely,hourly,alerts")
	if err != nil {
		return entities.Forecast{}, err
	}
	if len(out.Daily) == 0 {
		return entities.Forecast{}, fmt.Errorf("owm: no daily data")
	}
	// One Call restituisce al massimo 8 giorni: oltre, il forecast è più corto
	n := min(days, len(out.Daily))
	fc := entities.Forecast{Days: make([]entities.ForecastDay, 0, n), Source: entities.SourceProvider}
	for _, d := range out.Daily[:n] {
		t := time.Unix(d.Dt, 0).UTC()
		summary := d.Summary
		if summary == "" && len(d.Weather) > 0 {
			summary = d.Weather[0].Description
		}
		fc.Days = append(fc.Days, entities.ForecastDay{
			Date: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC),
			Temperature: entities.TemperatureRange{
				Min: round1(d.Temp.Min),
				Max: round1(d.Temp.Max),
				Avg: round1((d.Temp.Min + d.Temp.Max) / 2),
			},
			Precipitation: round1(d.Rain),
			Humidity:      d.Humidity,
			WindSpeed:     round1(d.WindSpeed),
			Summary:       summary,
		})
	}
	return fc, nil
}

// history issues one day_summary call per day; a single failed day fails
// the whole range so the retry executor repeats it.
func (o *owmProvider) history(ctx context.Context, p entities.GeoPoint, from, to time.Time) (entities.History, error) {
	if o.client == nil || o.apiKey == "" {
		return entities.History{}, errNotConfigured
	}
	h := entities.History{Source: entities.SourceProvider}
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		q := o.query(p)
		q.Set("date", day.Format(time.DateOnly))
		var s owmDaySummary
		if err := o.client.GetJSON(ctx, "/onecall/day_summary", q, "", &s); err != nil {
			return entities.History{}, err
		}
		h.Days = append(h.Days, entities.HistoricalDay{
			Date:           day,
			TemperatureMin: round1(s.Temperature.Min),
			TemperatureMax: round1(s.Temperature.Max),
			Precipitation:  round1(s.Precipitation.Total),
			Humidity:       s.Humidity.Afternoon,
			WindSpeed:      round1(s.Wind.Max.Speed),
		})
	}
	return h, nil
}

func round1(x float64) float64 { return math.Round(x*10) / 10 }

func round2(x float64) float64 { return math.Round(x*100) / 100 }
