// Package routewindow derives daily recurring pickup/dropoff time windows
// for a student's bus routes from a sample of past rides. Dates are
// deliberately collapsed to time-of-day: the output is a schedule estimate,
// not a historical log.
package routewindow

import (
	"sort"
	"time"

	"github.com/grimsteel/smarttag-go/smarttag"
)

// Safety margins extending the window past the latest observed event, so a
// poll scheduled against the window never cuts off a slightly late bus.
const (
	embarkMargin = 5 * time.Minute
	debarkMargin = 10 * time.Minute
)

// RouteWindow describes the safe polling bounds for one route, derived from
// the rides sharing its route id.
type RouteWindow struct {
	RouteID   int64  `json:"routeId"`
	RouteName string `json:"routeName"`

	// EmbarkStart is the earliest observed pickup time of day.
	EmbarkStart TimeOfDay `json:"embarkStart"`
	// EmbarkEnd is the latest observed pickup time of day plus the embark
	// margin.
	EmbarkEnd TimeOfDay `json:"embarkEnd"`
	// DebarkEnd is the latest observed dropoff time of day plus the debark
	// margin.
	DebarkEnd TimeOfDay `json:"debarkEnd"`

	AverageLengthMinutes float64 `json:"averageLengthMinutes"`
	AverageDistanceKm    float64 `json:"averageDistanceKm"`
}

// group accumulates one route's rides in a single pass.
type group struct {
	window RouteWindow
	count  int
}

// Compute groups rides by route id and derives one RouteWindow per group.
// Input order does not matter; the result is sorted by route id. An empty
// ride list yields an empty result.
func Compute(rides []smarttag.Ride) []RouteWindow {
	groups := make(map[int64]*group)

	for _, ride := range rides {
		g, ok := groups[ride.RouteID]
		if !ok {
			g = &group{window: RouteWindow{
				RouteID:   ride.RouteID,
				RouteName: ride.RouteName,
				// Any real ride lowers the minimum and raises the maximums.
				EmbarkStart: TimeOfDay{Hour: 23, Minute: 59, Second: 59},
				EmbarkEnd:   TimeOfDay{},
				DebarkEnd:   TimeOfDay{},
			}}
			groups[ride.RouteID] = g
		}

		embark := FromTime(ride.Start.Time)
		if embark.Before(g.window.EmbarkStart) {
			g.window.EmbarkStart = embark
		}

		embarkEnd := FromTime(ride.Start.Time.Add(embarkMargin))
		if embarkEnd.After(g.window.EmbarkEnd) {
			g.window.EmbarkEnd = embarkEnd
		}

		debarkEnd := FromTime(ride.End.Time.Add(debarkMargin))
		if debarkEnd.After(g.window.DebarkEnd) {
			g.window.DebarkEnd = debarkEnd
		}

		// Incremental mean, keeps the fold single-pass.
		length := ride.Duration().Seconds() / 60
		g.window.AverageLengthMinutes += (length - g.window.AverageLengthMinutes) / float64(g.count+1)

		distance := ride.DistanceKm()
		g.window.AverageDistanceKm += (distance - g.window.AverageDistanceKm) / float64(g.count+1)

		g.count++
	}

	windows := make([]RouteWindow, 0, len(groups))
	for _, g := range groups {
		windows = append(windows, g.window)
	}
	sort.Slice(windows, func(i, j int) bool { return windows[i].RouteID < windows[j].RouteID })
	return windows
}
