// Package stats summarizes the eggs logged for a flock.
package stats

import (
	"fmt"
	"sort"
	"time"

	"github.com/brianly1003/flocksync/internal/domain"
	"github.com/rs/zerolog/log"
)

// AllTime selects every egg; any other range is a month, "YYYY-MM".
const AllTime = "allTime"

// AverageWindow is the number of days the all-time daily average covers.
const AverageWindow = 30

const dayLayout = "2006-01-02"

// Period is the rollup for one day (month range) or one month (all time).
type Period struct {
	Total      int            `json:"total"`
	ByChicken  map[string]int `json:"byChicken"`
	HasNote    bool           `json:"hasNote,omitempty"`
	HasDamaged bool           `json:"hasDamaged,omitempty"`
}

// ChickenCount is one hen's total.
type ChickenCount struct {
	ChickenID string `json:"chickenId"`
	Count     int    `json:"count"`
}

// HeaviestEgg identifies the heaviest logged egg.
type HeaviestEgg struct {
	ID  string     `json:"id"`
	Egg domain.Egg `json:"egg"`
}

// Stats is the summary for a range.
type Stats struct {
	Total         int                `json:"total"`
	Heaviest      *HeaviestEgg       `json:"heaviest"`
	AverageWeight *float64           `json:"averageWeight"`
	AverageNumber float64            `json:"averageNumber"`
	FirstEgg      string             `json:"firstEgg"`
	MostEggs      string             `json:"mostEggs,omitempty"`
	PerChicken    []ChickenCount     `json:"eggsPerChicken"`
	PerPeriod     map[string]*Period `json:"eggsPerPeriod"`
}

type entry struct {
	id  string
	egg domain.Egg
	day time.Time
}

// Calculate summarizes eggs for rng as of now. It returns nil when there are
// no eggs. Totals, the heaviest egg, the average weight and the per-hen
// counts cover every egg; the period rollup and the daily average cover the
// range only. Range bounds are inclusive days.
func Calculate(eggs map[string]domain.Egg, rng string, now time.Time) (*Stats, error) {
	now = now.UTC()
	today := truncateDay(now)

	var (
		start, end time.Time // end is exclusive; zero means open
		days       int
	)
	if rng == AllTime {
		start = today.AddDate(0, 0, -(AverageWindow - 1))
		days = AverageWindow
	} else {
		month, err := time.Parse("2006-01", rng)
		if err != nil {
			return nil, fmt.Errorf("%w: range %q", domain.ErrInvalidPayload, rng)
		}
		start = month
		end = month.AddDate(0, 1, 0)
		if today.Before(end) && !today.Before(start) {
			days = int(today.Sub(start).Hours()/24) + 1
		} else {
			days = int(end.Sub(start).Hours() / 24)
		}
	}

	entries := sortedEntries(eggs)
	if len(entries) == 0 {
		return nil, nil
	}

	st := &Stats{PerPeriod: make(map[string]*Period)}
	perChicken := make(map[string]int)
	var (
		totalWeight  float64
		weighed      int
		highest      float64
		inRangeCount int
	)

	for _, e := range entries {
		qty := e.egg.Count()
		st.Total += qty
		if st.FirstEgg == "" {
			st.FirstEgg = e.egg.Date
		}
		if e.egg.ChickenID != domain.BulkEntryChickenID {
			perChicken[e.egg.ChickenID] += qty
		}

		if w := float64(e.egg.Weight); w > 0 {
			weighed++
			totalWeight += w
			if w > highest {
				highest = w
				st.Heaviest = &HeaviestEgg{ID: e.id, Egg: e.egg}
			}
		}

		inRange := !e.day.Before(start) && (end.IsZero() || e.day.Before(end))
		if inRange {
			inRangeCount += qty
		}
		if rng != AllTime && !inRange {
			continue
		}

		key := e.day.Format(dayLayout)
		if rng == AllTime {
			key = e.day.Format("2006-01")
		}
		p := st.PerPeriod[key]
		if p == nil {
			p = &Period{ByChicken: make(map[string]int)}
			st.PerPeriod[key] = p
		}
		p.Total += qty
		if e.egg.Notes != "" {
			p.HasNote = true
		}
		if e.egg.Damaged {
			p.HasDamaged = true
		}
		if e.egg.ChickenID != domain.BulkEntryChickenID {
			p.ByChicken[e.egg.ChickenID] += qty
		}
	}

	if weighed > 0 {
		avg := totalWeight / float64(weighed)
		st.AverageWeight = &avg
	}

	// A flock younger than the window averages over the days it has existed.
	if first := entries[0].day; rng == AllTime && first.After(start) {
		days -= int(first.Sub(start).Hours() / 24)
	}
	if inRangeCount > 0 && days > 0 {
		st.AverageNumber = float64(inRangeCount) / float64(days)
	}

	st.PerChicken = make([]ChickenCount, 0, len(perChicken))
	for id, n := range perChicken {
		st.PerChicken = append(st.PerChicken, ChickenCount{ChickenID: id, Count: n})
	}
	sort.Slice(st.PerChicken, func(i, j int) bool {
		a, b := st.PerChicken[i], st.PerChicken[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.ChickenID < b.ChickenID
	})
	if len(st.PerChicken) > 1 {
		st.MostEggs = st.PerChicken[0].ChickenID
	}
	return st, nil
}

// sortedEntries orders eggs by day, then key. Eggs without a readable date
// are skipped.
func sortedEntries(eggs map[string]domain.Egg) []entry {
	out := make([]entry, 0, len(eggs))
	for id, egg := range eggs {
		day, err := parseDay(egg.Date)
		if err != nil {
			log.Warn().Str("egg_id", id).Str("date", egg.Date).Msg("egg skipped: unreadable date")
			continue
		}
		out = append(out, entry{id: id, egg: egg, day: day})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].day.Equal(out[j].day) {
			return out[i].day.Before(out[j].day)
		}
		return out[i].id < out[j].id
	})
	return out
}

func parseDay(date string) (time.Time, error) {
	if len(date) < len(dayLayout) {
		return time.Time{}, fmt.Errorf("short date %q", date)
	}
	return time.Parse(dayLayout, date[:len(dayLayout)])
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Decode converts a raw eggs collection, as read from the remote, into
// typed eggs. Entries that are not egg records are skipped.
func Decode(raw map[string]any) map[string]domain.Egg {
	out := make(map[string]domain.Egg, len(raw))
	for id, v := range raw {
		var egg domain.Egg
		if err := domain.Decode(v, &egg); err != nil {
			log.Warn().Str("egg_id", id).Err(err).Msg("egg skipped: not a record")
			continue
		}
		out[id] = egg
	}
	return out
}
