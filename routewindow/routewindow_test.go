package routewindow_test

import (
	"encoding/json"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/grimsteel/smarttag-go/routewindow"
	"github.com/grimsteel/smarttag-go/smarttag"
)

func rideAt(t *testing.T, routeID int64, routeName, start, end string) smarttag.Ride {
	t.Helper()
	const layout = "01/02/2006 15:04:05"
	startTime, err := time.ParseInLocation(layout, start, time.Local)
	require.NoError(t, err)
	endTime, err := time.ParseInLocation(layout, end, time.Local)
	require.NoError(t, err)

	return smarttag.Ride{
		RouteID:   routeID,
		RouteName: routeName,
		Start:     smarttag.RideEndpoint{Time: startTime, Latitude: 32.9, Longitude: -96.7},
		End:       smarttag.RideEndpoint{Time: endTime, Latitude: 32.95, Longitude: -96.75},
	}
}

func TestComputeEmptyInput(t *testing.T) {
	require.Empty(t, routewindow.Compute(nil))
	require.Empty(t, routewindow.Compute([]smarttag.Ride{}))
}

func TestComputeSingleRide(t *testing.T) {
	windows := routewindow.Compute([]smarttag.Ride{
		rideAt(t, 1, "Route 1 AM", "03/03/2025 07:30:00", "03/03/2025 07:52:00"),
	})
	require.Len(t, windows, 1)

	w := windows[0]
	require.Equal(t, int64(1), w.RouteID)
	require.Equal(t, "Route 1 AM", w.RouteName)
	require.Equal(t, routewindow.TimeOfDay{Hour: 7, Minute: 30}, w.EmbarkStart)
	require.Equal(t, routewindow.TimeOfDay{Hour: 7, Minute: 35}, w.EmbarkEnd)
	require.Equal(t, routewindow.TimeOfDay{Hour: 8, Minute: 2}, w.DebarkEnd)
	require.InDelta(t, 22.0, w.AverageLengthMinutes, 1e-9)
}

func TestComputeWindowBounds(t *testing.T) {
	// Two rides on the same route: 08:00-08:20 and 08:10-08:25.
	windows := routewindow.Compute([]smarttag.Ride{
		rideAt(t, 1, "Route 1 AM", "03/03/2025 08:00:00", "03/03/2025 08:20:00"),
		rideAt(t, 1, "Route 1 AM", "03/04/2025 08:10:00", "03/04/2025 08:25:00"),
	})
	require.Len(t, windows, 1)

	w := windows[0]
	require.Equal(t, routewindow.TimeOfDay{Hour: 8}, w.EmbarkStart)
	require.Equal(t, routewindow.TimeOfDay{Hour: 8, Minute: 15}, w.EmbarkEnd)
	require.Equal(t, routewindow.TimeOfDay{Hour: 8, Minute: 35}, w.DebarkEnd)
	// Mean of 20 and 15 minutes.
	require.InDelta(t, 17.5, w.AverageLengthMinutes, 1e-9)
}

func TestComputeGroupsByRoute(t *testing.T) {
	windows := routewindow.Compute([]smarttag.Ride{
		rideAt(t, 2, "Route 2 PM", "03/03/2025 15:30:00", "03/03/2025 15:55:00"),
		rideAt(t, 1, "Route 1 AM", "03/03/2025 08:00:00", "03/03/2025 08:20:00"),
		rideAt(t, 2, "Route 2 PM", "03/04/2025 15:28:00", "03/04/2025 15:50:00"),
	})
	require.Len(t, windows, 2)

	// Sorted by route id.
	require.Equal(t, int64(1), windows[0].RouteID)
	require.Equal(t, int64(2), windows[1].RouteID)
	require.Equal(t, routewindow.TimeOfDay{Hour: 8}, windows[0].EmbarkStart)
	require.Equal(t, routewindow.TimeOfDay{Hour: 15, Minute: 28}, windows[1].EmbarkStart)
	require.Equal(t, routewindow.TimeOfDay{Hour: 16, Minute: 0}, windows[1].DebarkEnd)
}

func TestComputeOrderIndependent(t *testing.T) {
	rides := []smarttag.Ride{
		rideAt(t, 1, "Route 1 AM", "03/03/2025 08:00:00", "03/03/2025 08:20:00"),
		rideAt(t, 1, "Route 1 AM", "03/04/2025 08:10:00", "03/04/2025 08:25:00"),
		rideAt(t, 1, "Route 1 AM", "03/05/2025 07:55:00", "03/05/2025 08:18:00"),
		rideAt(t, 2, "Route 2 PM", "03/03/2025 15:30:00", "03/03/2025 15:55:00"),
		rideAt(t, 2, "Route 2 PM", "03/04/2025 15:28:00", "03/04/2025 15:50:00"),
	}
	baseline := routewindow.Compute(rides)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 10; i++ {
		shuffled := make([]smarttag.Ride, len(rides))
		copy(shuffled, rides)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})

		windows := routewindow.Compute(shuffled)
		require.Len(t, windows, len(baseline))
		for j := range windows {
			require.Equal(t, baseline[j].RouteID, windows[j].RouteID)
			require.Equal(t, baseline[j].EmbarkStart, windows[j].EmbarkStart)
			require.Equal(t, baseline[j].EmbarkEnd, windows[j].EmbarkEnd)
			require.Equal(t, baseline[j].DebarkEnd, windows[j].DebarkEnd)
			require.InDelta(t, baseline[j].AverageLengthMinutes, windows[j].AverageLengthMinutes, 1e-9)
			require.InDelta(t, baseline[j].AverageDistanceKm, windows[j].AverageDistanceKm, 1e-9)
		}
	}
}

func TestComputeMarginWrapsPastMidnight(t *testing.T) {
	windows := routewindow.Compute([]smarttag.Ride{
		rideAt(t, 9, "Late Activity", "03/03/2025 23:40:00", "03/03/2025 23:58:00"),
	})
	require.Len(t, windows, 1)

	// 23:58 + 10min rolls over to 00:08 the next day; only the clock
	// reading is kept.
	require.Equal(t, routewindow.TimeOfDay{Hour: 0, Minute: 8}, windows[0].DebarkEnd)
}

func TestTimeOfDayJSON(t *testing.T) {
	data, err := json.Marshal(routewindow.TimeOfDay{Hour: 8, Minute: 5, Second: 30})
	require.NoError(t, err)
	require.JSONEq(t, `"08:05:30"`, string(data))

	var tod routewindow.TimeOfDay
	require.NoError(t, json.Unmarshal([]byte(`"15:04:05"`), &tod))
	require.Equal(t, routewindow.TimeOfDay{Hour: 15, Minute: 4, Second: 5}, tod)

	require.Error(t, json.Unmarshal([]byte(`"25:00:00"`), &tod))
}

func TestTimeOfDayOrdering(t *testing.T) {
	early := routewindow.TimeOfDay{Hour: 7, Minute: 59, Second: 59}
	late := routewindow.TimeOfDay{Hour: 8}
	require.True(t, early.Before(late))
	require.True(t, late.After(early))
	require.False(t, early.After(early))
	require.False(t, early.Before(early))
}
