// Package spatiotemporal implements the hierarchical Year->Month->Day->Hour
// episode index described in SPEC_FULL.md §4.9. It is an in-memory,
// read/write-lock-protected index rebuilt from storage on startup; it is
// never persisted on its own.
package spatiotemporal

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TimeBucket identifies a node in the time hierarchy at any of its four
// levels. A zero field below the chosen Level is not meaningful.
type TimeBucket struct {
	Year  int
	Month time.Month
	Day   int
	Hour  int
}

// BucketFromTime derives the full Year/Month/Day/Hour bucket containing t
// (UTC).
func BucketFromTime(t time.Time) TimeBucket {
	t = t.UTC()
	return TimeBucket{Year: t.Year(), Month: t.Month(), Day: t.Day(), Hour: t.Hour()}
}

type hourNode struct {
	episodes []uuid.UUID
}

type dayNode struct {
	hours map[int]*hourNode
}

type monthNode struct {
	days map[int]*dayNode
}

type yearNode struct {
	months map[time.Month]*monthNode
}

// Stats reports index size and activity counters.
type Stats struct {
	TotalEpisodes int
	QueryCount    uint64
	InsertCount   uint64
	YearCount     int
}

// Index is the hierarchical time index over episode ids.
type Index struct {
	mu    sync.RWMutex
	years map[int]*yearNode

	totalEpisodes int
	queryCount    uint64
	insertCount   uint64
}

// New builds an empty index.
func New() *Index {
	return &Index{years: make(map[int]*yearNode)}
}

// Insert adds an episode id under the hour bucket of its start time.
func (idx *Index) Insert(id uuid.UUID, t time.Time) {
	b := BucketFromTime(t)
	idx.mu.Lock()
	defer idx.mu.Unlock()

	year, ok := idx.years[b.Year]
	if !ok {
		year = &yearNode{months: make(map[time.Month]*monthNode)}
		idx.years[b.Year] = year
	}
	month, ok := year.months[b.Month]
	if !ok {
		month = &monthNode{days: make(map[int]*dayNode)}
		year.months[b.Month] = month
	}
	day, ok := month.days[b.Day]
	if !ok {
		day = &dayNode{hours: make(map[int]*hourNode)}
		month.days[b.Day] = day
	}
	hour, ok := day.hours[b.Hour]
	if !ok {
		hour = &hourNode{}
		day.hours[b.Hour] = hour
	}
	hour.episodes = append(hour.episodes, id)
	idx.totalEpisodes++
	idx.insertCount++
}

// Remove deletes an episode id from the leaf bucket of originalTime. It
// is a no-op if the id is not present there. Any hour/day/month/year
// node left with no episodes underneath is pruned, so that
// insert(e); remove(e.id, e.start_time) leaves the index
// byte-equivalent to its state before the insert.
func (idx *Index) Remove(id uuid.UUID, originalTime time.Time) {
	b := BucketFromTime(originalTime)
	idx.mu.Lock()
	defer idx.mu.Unlock()

	year, ok := idx.years[b.Year]
	if !ok {
		return
	}
	month, ok := year.months[b.Month]
	if !ok {
		return
	}
	day, ok := month.days[b.Day]
	if !ok {
		return
	}
	hour, ok := day.hours[b.Hour]
	if !ok {
		return
	}

	found := false
	for i, existing := range hour.episodes {
		if existing == id {
			hour.episodes = append(hour.episodes[:i], hour.episodes[i+1:]...)
			idx.totalEpisodes--
			found = true
			break
		}
	}
	if !found {
		return
	}

	if len(hour.episodes) == 0 {
		delete(day.hours, b.Hour)
	}
	if len(day.hours) == 0 {
		delete(month.days, b.Day)
	}
	if len(month.days) == 0 {
		delete(year.months, b.Month)
	}
	if len(year.months) == 0 {
		delete(idx.years, b.Year)
	}
}

func (idx *Index) hourAtLocked(b TimeBucket) *hourNode {
	year, ok := idx.years[b.Year]
	if !ok {
		return nil
	}
	month, ok := year.months[b.Month]
	if !ok {
		return nil
	}
	day, ok := month.days[b.Day]
	if !ok {
		return nil
	}
	return day.hours[b.Hour]
}

// QueryHour returns the episode ids stored directly under the given
// hour bucket.
func (idx *Index) QueryHour(year int, month time.Month, day, hour int) []uuid.UUID {
	idx.mu.Lock()
	idx.queryCount++
	h := idx.hourAtLocked(TimeBucket{Year: year, Month: month, Day: day, Hour: hour})
	idx.mu.Unlock()
	if h == nil {
		return nil
	}
	out := make([]uuid.UUID, len(h.episodes))
	copy(out, h.episodes)
	return out
}

// QueryBucket returns the episode ids under any of the four bucket
// granularities. A zero Month means Year-level, a zero Day means
// Month-level, a zero Hour means Day-level; all four set means Hour-level.
func (idx *Index) QueryBucket(b TimeBucket) []uuid.UUID {
	idx.mu.Lock()
	defer func() { idx.queryCount++; idx.mu.Unlock() }()

	year, ok := idx.years[b.Year]
	if !ok {
		return nil
	}
	if b.Month == 0 {
		return collectYear(year)
	}
	month, ok := year.months[b.Month]
	if !ok {
		return nil
	}
	if b.Day == 0 {
		return collectMonth(month)
	}
	day, ok := month.days[b.Day]
	if !ok {
		return nil
	}
	if b.Hour == 0 {
		return collectDay(day)
	}
	hour, ok := day.hours[b.Hour]
	if !ok {
		return nil
	}
	out := make([]uuid.UUID, len(hour.episodes))
	copy(out, hour.episodes)
	return out
}

func collectYear(y *yearNode) []uuid.UUID {
	var out []uuid.UUID
	for _, m := range y.months {
		out = append(out, collectMonth(m)...)
	}
	return out
}

func collectMonth(m *monthNode) []uuid.UUID {
	var out []uuid.UUID
	for _, d := range m.days {
		out = append(out, collectDay(d)...)
	}
	return out
}

func collectDay(d *dayNode) []uuid.UUID {
	var out []uuid.UUID
	for _, h := range d.hours {
		out = append(out, h.episodes...)
	}
	return out
}

// hourKey identifies an hour bucket with a total order suitable for
// most-recent-first sorting.
type hourKey struct {
	bucket TimeBucket
	t      time.Time
}

// QueryRange walks the minimum covering set of nodes between start and
// end, returning up to limit episode ids, most-recent-first.
func (idx *Index) QueryRange(start, end time.Time, limit int) []uuid.UUID {
	idx.mu.Lock()
	defer func() { idx.queryCount++; idx.mu.Unlock() }()

	start, end = start.UTC(), end.UTC()
	var hours []hourKey
	for year, yNode := range idx.years {
		if year < start.Year() || year > end.Year() {
			continue
		}
		for month, mNode := range yNode.months {
			for day, dNode := range mNode.days {
				for hour := range dNode.hours {
					t := time.Date(year, month, day, hour, 0, 0, 0, time.UTC)
					if t.Before(truncateToHour(start)) || t.After(truncateToHour(end)) {
						continue
					}
					hours = append(hours, hourKey{bucket: TimeBucket{Year: year, Month: month, Day: day, Hour: hour}, t: t})
				}
			}
		}
	}

	sort.Slice(hours, func(i, j int) bool { return hours[i].t.After(hours[j].t) })

	var out []uuid.UUID
	for _, hk := range hours {
		h := idx.hourAtLocked(hk.bucket)
		if h == nil {
			continue
		}
		for _, id := range h.episodes {
			out = append(out, id)
			if limit > 0 && len(out) >= limit {
				return out
			}
		}
	}
	return out
}

func truncateToHour(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC)
}

// RecentDayBuckets returns up to n of the most recent non-empty day
// buckets, most-recent-first, used by the hierarchical retriever's
// temporal clustering level.
func (idx *Index) RecentDayBuckets(n int) []TimeBucket {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	type dayKey struct {
		bucket TimeBucket
		t      time.Time
	}
	var days []dayKey
	for year, yNode := range idx.years {
		for month, mNode := range yNode.months {
			for day, dNode := range mNode.days {
				if len(dNode.hours) == 0 {
					continue
				}
				days = append(days, dayKey{
					bucket: TimeBucket{Year: year, Month: month, Day: day},
					t:      time.Date(year, month, day, 0, 0, 0, 0, time.UTC),
				})
			}
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i].t.After(days[j].t) })
	if n > 0 && len(days) > n {
		days = days[:n]
	}
	out := make([]TimeBucket, len(days))
	for i, d := range days {
		out[i] = d.bucket
	}
	return out
}

// Clear removes every indexed episode.
func (idx *Index) Clear() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.years = make(map[int]*yearNode)
	idx.totalEpisodes = 0
}

// MemoryUsageEstimate returns a rough byte-size estimate of the index,
// proportional to indexed episode count plus tree node overhead.
func (idx *Index) MemoryUsageEstimate() int64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	const perEpisodeBytes = 16 // uuid.UUID
	const perNodeOverheadBytes = 64
	nodes := 0
	for _, y := range idx.years {
		nodes++
		for _, m := range y.months {
			nodes++
			for _, d := range m.days {
				nodes++
				nodes += len(d.hours)
			}
		}
	}
	return int64(idx.totalEpisodes)*perEpisodeBytes + int64(nodes)*perNodeOverheadBytes
}

// Stats returns a snapshot of index size and activity.
func (idx *Index) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return Stats{
		TotalEpisodes: idx.totalEpisodes,
		QueryCount:    idx.queryCount,
		InsertCount:   idx.insertCount,
		YearCount:     len(idx.years),
	}
}
