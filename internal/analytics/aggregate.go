package analytics

import (
	"sort"
	"time"

	"classattend/internal/model"
)

// TrendWindow is the number of most recent day buckets kept by DailyTrend.
const TrendWindow = 30

// TrendPoint is attendance for one calendar day.
type TrendPoint struct {
	Date         string  `json:"date"`
	PresentCount int     `json:"present"`
	TotalCount   int     `json:"total"`
	Rate         float64 `json:"rate"`
}

// ClassStat aggregates every session of one class.
type ClassStat struct {
	ClassName      string  `json:"className"`
	SessionCount   int     `json:"totalSessions"`
	AvgAttendance  float64 `json:"avgAttendance"`
	TotalAttendees int     `json:"totalAttendees"`
	Rate           float64 `json:"attendanceRate"`
}

// HourStat aggregates sessions starting in the same hour of day.
type HourStat struct {
	Hour          int     `json:"hour"`
	SessionCount  int     `json:"sessions"`
	AvgAttendance float64 `json:"avgAttendance"`
}

// Overview totals a window of sessions.
type Overview struct {
	TotalSessions  int     `json:"totalSessions"`
	ActiveSessions int     `json:"activeSessions"`
	TotalRecords   int     `json:"totalRecords"`
	PresentRecords int     `json:"presentRecords"`
	OverallRate    float64 `json:"overallRate"`
}

func rate(present, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(present) / float64(total) * 100
}

// DailyTrend buckets sessions by the calendar day of their start time, in the
// start time's location, ascending, keeping the last TrendWindow days.
func DailyTrend(sessions []model.SessionRecords) []TrendPoint {
	type bucket struct {
		present, total int
	}
	byDay := make(map[string]*bucket)
	for _, s := range sessions {
		key := s.Session.StartTime.Format(time.DateOnly)
		b, ok := byDay[key]
		if !ok {
			b = &bucket{}
			byDay[key] = b
		}
		b.present += s.PresentCount()
		b.total += len(s.Records)
	}

	out := make([]TrendPoint, 0, len(byDay))
	for key, b := range byDay {
		out = append(out, TrendPoint{Date: key, PresentCount: b.present, TotalCount: b.total, Rate: rate(b.present, b.total)})
	}
	// DateOnly keys sort chronologically as strings
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	if len(out) > TrendWindow {
		out = out[len(out)-TrendWindow:]
	}
	return out
}

// PerClass groups sessions by class name, highest rate first.
func PerClass(sessions []model.SessionRecords) []ClassStat {
	type acc struct {
		sessions, attendees, present int
	}
	byClass := make(map[string]*acc)
	for _, s := range sessions {
		a, ok := byClass[s.Session.ClassName]
		if !ok {
			a = &acc{}
			byClass[s.Session.ClassName] = a
		}
		a.sessions++
		a.attendees += len(s.Records)
		a.present += s.PresentCount()
	}

	out := make([]ClassStat, 0, len(byClass))
	for name, a := range byClass {
		out = append(out, ClassStat{
			ClassName:      name,
			SessionCount:   a.sessions,
			AvgAttendance:  float64(a.attendees) / float64(a.sessions),
			TotalAttendees: a.attendees,
			Rate:           rate(a.present, a.attendees),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rate != out[j].Rate {
			return out[i].Rate > out[j].Rate
		}
		return out[i].ClassName < out[j].ClassName
	})
	return out
}

// PerHour groups sessions by start hour (0-23), ascending.
func PerHour(sessions []model.SessionRecords) []HourStat {
	var counts, attendees [24]int
	for _, s := range sessions {
		h := s.Session.StartTime.Hour()
		counts[h]++
		attendees[h] += len(s.Records)
	}
	out := make([]HourStat, 0, 24)
	for h := 0; h < 24; h++ {
		if counts[h] == 0 {
			continue
		}
		out = append(out, HourStat{
			Hour:          h,
			SessionCount:  counts[h],
			AvgAttendance: float64(attendees[h]) / float64(counts[h]),
		})
	}
	return out
}

// Summarize totals sessions; a session counts as active while open at now.
func Summarize(sessions []model.SessionRecords, now time.Time) Overview {
	var o Overview
	for _, s := range sessions {
		o.TotalSessions++
		if s.Session.IsOpen(now) {
			o.ActiveSessions++
		}
		o.TotalRecords += len(s.Records)
		o.PresentRecords += s.PresentCount()
	}
	o.OverallRate = rate(o.PresentRecords, o.TotalRecords)
	return o
}
