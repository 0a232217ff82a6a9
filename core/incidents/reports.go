package incidents

import (
	"context"
	"sort"

	"halligan-rms/core/workbook"
)

// CountBucket is one labelled tally in a report breakdown.
type CountBucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// ResponseStats summarizes alarm-to-arrival performance over a set of
// incidents. Incidents without a usable times row are excluded and counted.
type ResponseStats struct {
	Samples        int     `json:"samples"`
	Excluded       int     `json:"excluded"`
	AverageMinutes float64 `json:"average_minutes"`
	MedianMinutes  float64 `json:"median_minutes"`
	MaxMinutes     int     `json:"max_minutes"`
}

// CountByType tallies filtered incidents per IncidentType, sorted by
// descending count, then label.
func (s *Service) CountByType(ctx context.Context, f Filter) []CountBucket {
	return s.countBy(f, func(rec workbook.Record) string {
		return rec.Get("IncidentType").Str()
	})
}

// CountByMonth tallies filtered incidents per calendar month of IncidentDate
// in "2006-01" form. Records without a date fall into an "unknown" bucket.
func (s *Service) CountByMonth(ctx context.Context, f Filter) []CountBucket {
	buckets := s.countBy(f, func(rec workbook.Record) string {
		d := rec.Get("IncidentDate")
		if d.Kind() != workbook.KindDate {
			return "unknown"
		}
		return d.Time().Format("2006-01")
	})
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Label < buckets[j].Label })
	return buckets
}

func (s *Service) countBy(f Filter, label func(workbook.Record) string) []CountBucket {
	tally := map[string]int{}
	s.store.View(func(ts *workbook.TableSet) {
		for _, rec := range ts.Table(workbook.SheetIncidents).Records {
			if !matches(rec, f) {
				continue
			}
			l := label(rec)
			if l == "" {
				l = "unknown"
			}
			tally[l]++
		}
	})
	out := make([]CountBucket, 0, len(tally))
	for l, n := range tally {
		out = append(out, CountBucket{Label: l, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	return out
}

// ResponseTimes computes alarm-to-arrival stats across the filtered
// incidents, joining each one to its first well-formed times row.
func (s *Service) ResponseTimes(ctx context.Context, f Filter) ResponseStats {
	var samples []int
	excluded := 0
	s.store.View(func(ts *workbook.TableSet) {
		times := ts.Table(workbook.SheetTimes)
		for _, rec := range ts.Table(workbook.SheetIncidents).Records {
			if !matches(rec, f) {
				continue
			}
			key := rec.Get(workbook.PrimaryKey).Key()
			m, ok := responseMinutes(times.FilterByKey(workbook.PrimaryKey, key))
			if !ok {
				excluded++
				continue
			}
			samples = append(samples, m)
		}
	})
	stats := ResponseStats{Samples: len(samples), Excluded: excluded}
	if len(samples) == 0 {
		return stats
	}
	sort.Ints(samples)
	total := 0
	for _, m := range samples {
		total += m
	}
	stats.AverageMinutes = float64(total) / float64(len(samples))
	stats.MaxMinutes = samples[len(samples)-1]
	mid := len(samples) / 2
	if len(samples)%2 == 1 {
		stats.MedianMinutes = float64(samples[mid])
	} else {
		stats.MedianMinutes = float64(samples[mid-1]+samples[mid]) / 2
	}
	return stats
}
