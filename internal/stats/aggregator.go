// Package stats derives reporting rollups from the detection event log.
package stats

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vigilant-eye/facewatch/internal/config"
	"github.com/vigilant-eye/facewatch/internal/models"
)

const dayLayout = "2006-01-02"

var ErrInvalidWindow = errors.New("invalid statistics window")

// Source reads the event log.
type Source interface {
	ListEventsSince(ctx context.Context, since time.Time) ([]models.DetectionEvent, error)
	ListPersonMatchesSince(ctx context.Context, since time.Time) ([]models.PersonMatch, error)
}

type Overview struct {
	TotalDetections      int
	TotalFacesDetected   int
	KnownFacesMatched    int
	UnknownFacesDetected int
	AvgProcessingTime    float64
	MatchRate            float64
}

type DailyStat struct {
	Date              string
	Detections        int
	TotalFaces        int
	KnownFaces        int
	UnknownFaces      int
	AvgProcessingTime float64
}

type TopMatch struct {
	PersonID      uuid.UUID
	Name          string
	NationalID    string
	Status        models.CitizenStatus
	MatchCount    int
	AvgConfidence float64
}

type Report struct {
	WindowDays   int
	Since        time.Time
	Overview     Overview
	Daily        []DailyStat
	TopMatches   []TopMatch
	RecentEvents []models.DetectionEvent
}

type Aggregator struct {
	src Source
	cfg config.StatsConfig
	loc *time.Location
	now func() time.Time
}

func NewAggregator(src Source, cfg config.StatsConfig) *Aggregator {
	return &Aggregator{src: src, cfg: cfg, loc: cfg.Location(), now: time.Now}
}

// Window validates days, substituting the default for zero.
func (a *Aggregator) Window(days int) (int, error) {
	if days == 0 {
		days = a.cfg.DefaultWindowDays
	}
	if days < 1 || days > a.cfg.MaxWindowDays {
		return 0, fmt.Errorf("%w: days must be between 1 and %d", ErrInvalidWindow, a.cfg.MaxWindowDays)
	}
	return days, nil
}

// Report aggregates the last days calendar days, today included.
func (a *Aggregator) Report(ctx context.Context, days int) (*Report, error) {
	days, err := a.Window(days)
	if err != nil {
		return nil, err
	}

	now := a.now()
	since := WindowStart(now, days, a.loc)

	events, err := a.src.ListEventsSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	matches, err := a.src.ListPersonMatchesSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("load matches: %w", err)
	}

	r := Compute(events, matches, now, days, a.loc, a.cfg.TopMatches, a.cfg.RecentEvents)
	return &r, nil
}

// Alerts returns sightings of wanted citizens in the window, newest first.
func (a *Aggregator) Alerts(ctx context.Context, days int) ([]models.PersonMatch, error) {
	days, err := a.Window(days)
	if err != nil {
		return nil, err
	}

	since := WindowStart(a.now(), days, a.loc)
	matches, err := a.src.ListPersonMatchesSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("load matches: %w", err)
	}

	var wanted []models.PersonMatch
	for _, m := range matches {
		if m.Status == models.CitizenStatusWanted && !m.CreatedAt.Before(since) {
			wanted = append(wanted, m)
		}
	}
	sort.SliceStable(wanted, func(i, j int) bool { return wanted[i].CreatedAt.After(wanted[j].CreatedAt) })
	return wanted, nil
}

// WindowStart is local midnight of the oldest day in a days-long window
// ending today.
func WindowStart(now time.Time, days int, loc *time.Location) time.Time {
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day()-(days-1), 0, 0, 0, 0, loc)
}

// Compute aggregates events and matches over the days-long window ending at
// now. Records outside the window are ignored, so the daily series always
// sums to the overview.
func Compute(events []models.DetectionEvent, matches []models.PersonMatch, now time.Time, days int, loc *time.Location, topN, recentN int) Report {
	since := WindowStart(now, days, loc)

	daily := make([]DailyStat, days)
	index := make(map[string]int, days)
	for i := range daily {
		d := time.Date(since.Year(), since.Month(), since.Day()+i, 0, 0, 0, 0, loc).Format(dayLayout)
		daily[i].Date = d
		index[d] = i
	}

	var (
		ov         Overview
		totalSecs  float64
		dailySecs  = make([]float64, days)
		windowed   = make([]models.DetectionEvent, 0, len(events))
		inWindowAt = func(t time.Time) (int, bool) {
			i, ok := index[t.In(loc).Format(dayLayout)]
			return i, ok && !t.Before(since)
		}
	)

	for _, ev := range events {
		i, ok := inWindowAt(ev.CreatedAt)
		if !ok {
			continue
		}
		windowed = append(windowed, ev)

		ov.TotalDetections++
		ov.TotalFacesDetected += ev.TotalFaces
		ov.KnownFacesMatched += ev.KnownFaces
		ov.UnknownFacesDetected += ev.UnknownFaces
		totalSecs += ev.ProcessingSeconds

		b := &daily[i]
		b.Detections++
		b.TotalFaces += ev.TotalFaces
		b.KnownFaces += ev.KnownFaces
		b.UnknownFaces += ev.UnknownFaces
		dailySecs[i] += ev.ProcessingSeconds
	}

	if ov.TotalDetections > 0 {
		ov.AvgProcessingTime = round(totalSecs/float64(ov.TotalDetections), 3)
	}
	ov.MatchRate = round(float64(ov.KnownFacesMatched)/float64(max(ov.TotalFacesDetected, 1))*100, 2)

	for i := range daily {
		if daily[i].Detections > 0 {
			daily[i].AvgProcessingTime = round(dailySecs[i]/float64(daily[i].Detections), 3)
		}
	}

	return Report{
		WindowDays:   days,
		Since:        since,
		Overview:     ov,
		Daily:        daily,
		TopMatches:   topMatches(matches, inWindowAt, topN),
		RecentEvents: recentEvents(windowed, recentN),
	}
}

func topMatches(matches []models.PersonMatch, inWindow func(time.Time) (int, bool), n int) []TopMatch {
	type acc struct {
		TopMatch
		sum float64
	}
	byPerson := make(map[uuid.UUID]*acc)
	for _, m := range matches {
		if _, ok := inWindow(m.CreatedAt); !ok || m.PersonID == uuid.Nil {
			continue
		}
		a, ok := byPerson[m.PersonID]
		if !ok {
			a = &acc{TopMatch: TopMatch{
				PersonID:   m.PersonID,
				Name:       m.Name,
				NationalID: m.NationalID,
				Status:     m.Status,
			}}
			byPerson[m.PersonID] = a
		}
		a.MatchCount++
		a.sum += m.Confidence
	}

	out := make([]TopMatch, 0, len(byPerson))
	for _, a := range byPerson {
		a.AvgConfidence = round(a.sum/float64(a.MatchCount), 2)
		out = append(out, a.TopMatch)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MatchCount != out[j].MatchCount {
			return out[i].MatchCount > out[j].MatchCount
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].PersonID.String() < out[j].PersonID.String()
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func recentEvents(events []models.DetectionEvent, n int) []models.DetectionEvent {
	sort.SliceStable(events, func(i, j int) bool { return events[i].CreatedAt.After(events[j].CreatedAt) })
	if n > 0 && len(events) > n {
		events = events[:n]
	}
	return events
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
