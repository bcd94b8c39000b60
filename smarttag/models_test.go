package smarttag_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/grimsteel/smarttag-go/smarttag"
)

func sampleRide(t *testing.T) smarttag.Ride {
	t.Helper()
	start, err := time.ParseInLocation("01/02/2006 15:04:05", "08/15/2025 07:58:00", time.Local)
	require.NoError(t, err)
	end, err := time.ParseInLocation("01/02/2006 15:04:05", "08/15/2025 08:20:00", time.Local)
	require.NoError(t, err)

	return smarttag.Ride{
		ID:    101,
		BusID: "Bus 42",
		Start: smarttag.RideEndpoint{Time: start, Latitude: 32.9, Longitude: -96.7},
		End:   smarttag.RideEndpoint{Time: end, Latitude: 32.95, Longitude: -96.75},
		Driver:    "A. Driver",
		Shift:     "AM",
		RouteID:   12,
		RouteName: "Route 12 AM",
	}
}

func TestRideJSONRoundTrip(t *testing.T) {
	original := sampleRide(t)

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded smarttag.Ride
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.True(t, original.Start.Time.Equal(decoded.Start.Time))
	require.True(t, original.End.Time.Equal(decoded.End.Time))

	// Normalize the time values for a full struct comparison; Equal above
	// already covers the instants.
	decoded.Start.Time = original.Start.Time
	decoded.End.Time = original.End.Time
	require.Equal(t, original, decoded)
}

func TestRideWireFormatFieldNames(t *testing.T) {
	data, err := json.Marshal(sampleRide(t))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))

	// The provider misspells longitude; the wire format has to as well.
	require.Contains(t, raw, "embarkationLongtitude")
	require.Contains(t, raw, "disembarkationLongtitude")
	require.NotContains(t, raw, "embarkationLongitude")
	require.Equal(t, "08/15/2025 07:58:00", raw["embarkationDate"])
	require.Equal(t, float64(101), raw["activityId"])
	require.Equal(t, "Route 12 AM", raw["friendlyRouteDisplay"])
}

func TestStudentJSONRoundTrip(t *testing.T) {
	original := smarttag.Student{
		ID:         7,
		ExternalID: "12345",
		FullName:   "Jordan Doe",
		Campus:     "Lakeside Elementary",
		Grade:      "3",
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded smarttag.Student
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, original, decoded)
}

func TestRideInvalidDate(t *testing.T) {
	var ride smarttag.Ride
	err := json.Unmarshal([]byte(`{
		"activityId": 1,
		"embarkationDate": "2025-08-15T07:58:00Z",
		"disembarkationDate": "08/15/2025 08:20:00"
	}`), &ride)
	require.Error(t, err)
}

func TestRideDurationAndDistance(t *testing.T) {
	ride := sampleRide(t)
	require.Equal(t, 22*time.Minute, ride.Duration())

	// Roughly 7.4 km between the sample endpoints near Dallas.
	require.InDelta(t, 7.4, ride.DistanceKm(), 0.5)
}
