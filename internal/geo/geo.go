package geo

import (
	"fmt"
	"math"
)

// Haversine returns the great-circle distance between two coordinates in
// kilometers.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	const R = 6371.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}

// TravelMin estimates travel time in minutes for km at an average speed.
func TravelMin(km, speedKmh float64) float64 {
	if speedKmh <= 0 {
		return 0
	}
	return km / speedKmh * 60
}

// ParseClock converts "HH:MM" or "HH:MM:SS" to minutes since midnight.
func ParseClock(s string) (float64, error) {
	var h, m, sec int
	if _, err := fmt.Sscanf(s, "%d:%d:%d", &h, &m, &sec); err != nil {
		sec = 0
		if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
			return 0, fmt.Errorf("invalid clock time %q", s)
		}
	}
	if h < 0 || h > 23 || m < 0 || m > 59 || sec < 0 || sec > 59 {
		return 0, fmt.Errorf("clock time %q out of range", s)
	}
	return float64(h)*60 + float64(m) + float64(sec)/60, nil
}

// Clock formats minutes since midnight as "HH:MM". Arrivals that spill past
// midnight keep counting hours upward, matching how schedules are reported.
func Clock(min float64) string {
	if min < 0 {
		min = 0
	}
	total := int(min)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
