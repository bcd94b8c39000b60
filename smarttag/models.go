package smarttag

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang/geo/s2"
)

// rideDateLayout is the fixed timestamp format used by the provider,
// interpreted in the local time zone of the running process.
const rideDateLayout = "01/02/2006 15:04:05"

const earthRadiusKm = 6371.0

// Student is one student attached to the parent account.
type Student struct {
	ID         int64  `json:"id"`
	ExternalID string `json:"externalId"`
	FullName   string `json:"fullName"`
	Campus     string `json:"campus"`
	Grade      string `json:"grade"`
}

// RideEndpoint is either the embarkation or disembarkation event of a ride.
type RideEndpoint struct {
	Time      time.Time
	Latitude  float64
	Longitude float64
}

// Ride is a single recorded bus ride for one student.
type Ride struct {
	ID        int64
	BusID     string
	Start     RideEndpoint
	End       RideEndpoint
	Driver    string
	Shift     string
	RouteID   int64
	RouteName string
}

// rideJSON mirrors the provider's wire format. "Longtitude" is the
// provider's own misspelling and must be preserved.
type rideJSON struct {
	ActivityID               int64   `json:"activityId"`
	BusName                  string  `json:"busName"`
	EmbarkationDate          string  `json:"embarkationDate"`
	EmbarkationLatitude      float64 `json:"embarkationLatitude"`
	EmbarkationLongtitude    float64 `json:"embarkationLongtitude"`
	DisembarkationDate       string  `json:"disembarkationDate"`
	DisembarkationLatitude   float64 `json:"disembarkationLatitude"`
	DisembarkationLongtitude float64 `json:"disembarkationLongtitude"`
	DriverName               string  `json:"driverName"`
	FriendlyRouteDisplay     string  `json:"friendlyRouteDisplay"`
	Shift                    string  `json:"shift"`
	RouteID                  int64   `json:"routeId"`
}

// UnmarshalJSON decodes a ride from the provider's wire format.
func (r *Ride) UnmarshalJSON(data []byte) error {
	var raw rideJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	start, err := time.ParseInLocation(rideDateLayout, raw.EmbarkationDate, time.Local)
	if err != nil {
		return fmt.Errorf("parse embarkation date: %w", err)
	}
	end, err := time.ParseInLocation(rideDateLayout, raw.DisembarkationDate, time.Local)
	if err != nil {
		return fmt.Errorf("parse disembarkation date: %w", err)
	}

	*r = Ride{
		ID:    raw.ActivityID,
		BusID: raw.BusName,
		Start: RideEndpoint{
			Time:      start,
			Latitude:  raw.EmbarkationLatitude,
			Longitude: raw.EmbarkationLongtitude,
		},
		End: RideEndpoint{
			Time:      end,
			Latitude:  raw.DisembarkationLatitude,
			Longitude: raw.DisembarkationLongtitude,
		},
		Driver:    raw.DriverName,
		Shift:     raw.Shift,
		RouteID:   raw.RouteID,
		RouteName: raw.FriendlyRouteDisplay,
	}
	return nil
}

// MarshalJSON encodes a ride back into the provider's wire format.
func (r Ride) MarshalJSON() ([]byte, error) {
	return json.Marshal(rideJSON{
		ActivityID:               r.ID,
		BusName:                  r.BusID,
		EmbarkationDate:          r.Start.Time.Format(rideDateLayout),
		EmbarkationLatitude:      r.Start.Latitude,
		EmbarkationLongtitude:    r.Start.Longitude,
		DisembarkationDate:       r.End.Time.Format(rideDateLayout),
		DisembarkationLatitude:   r.End.Latitude,
		DisembarkationLongtitude: r.End.Longitude,
		DriverName:               r.Driver,
		FriendlyRouteDisplay:     r.RouteName,
		Shift:                    r.Shift,
		RouteID:                  r.RouteID,
	})
}

// Duration returns how long the ride took.
func (r Ride) Duration() time.Duration {
	return r.End.Time.Sub(r.Start.Time)
}

// DistanceKm returns the great-circle distance in kilometers between the
// ride's embarkation and disembarkation points.
func (r Ride) DistanceKm() float64 {
	p1 := s2.LatLngFromDegrees(r.Start.Latitude, r.Start.Longitude)
	p2 := s2.LatLngFromDegrees(r.End.Latitude, r.End.Longitude)
	return p1.Distance(p2).Radians() * earthRadiusKm
}
