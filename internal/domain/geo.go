package domain

// Contains reports whether p lies inside any of the record's polygon rings.
// A record with no rings never contains anything.
func (r Record) Contains(p Coordinate) bool {
	for _, ring := range r.Rings {
		if ring.Contains(p) {
			return true
		}
	}
	return false
}

// Contains performs an even-odd ray-casting test: a ray cast eastward from p
// crosses the ring boundary an odd number of times iff p is inside. Rings
// are treated as closed (last vertex connects back to the first). Points
// exactly on an edge may report either side; SPC contours are coarse enough
// that the ambiguity is irrelevant.
func (ring Ring) Contains(p Coordinate) bool {
	if len(ring) < 3 {
		return false
	}
	inside := false
	j := len(ring) - 1
	for i := 0; i < len(ring); i++ {
		a, b := ring[i], ring[j]
		if (a.Lat > p.Lat) != (b.Lat > p.Lat) {
			// Longitude of the edge at the ray's latitude.
			cross := (b.Lon-a.Lon)*(p.Lat-a.Lat)/(b.Lat-a.Lat) + a.Lon
			if p.Lon < cross {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}
