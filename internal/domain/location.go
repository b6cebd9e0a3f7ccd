package domain

// Location is a driver position used to query nearby broadcasts.
type Location struct {
	Lat float64
	Lng float64
}

// Valid checks that the coordinates fall within WGS84 bounds.
func (l Location) Valid() bool {
	return l.Lat >= -90 && l.Lat <= 90 && l.Lng >= -180 && l.Lng <= 180
}

// Zero reports whether the location was never set. (0,0) is in the ocean and
// is treated as unset, matching the "no location - no fetch" rule.
func (l Location) Zero() bool {
	return l.Lat == 0 && l.Lng == 0
}
