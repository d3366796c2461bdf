package db

import (
	"math"

	"go.mongodb.org/mongo-driver/bson"
)

const (
	// earthRadiusKm is the mean radius of the earth in kilometers.
	earthRadiusKm = 6371.0

	// kmPerDegreeLat is a deliberately small km-per-degree figure used to size
	// the bounding-box prefilter. One degree spans ~111.2 km on the 6371 km
	// sphere; undershooting keeps the box strictly looser than the circle, so
	// the prefilter can over-admit but never drop a point inside the radius.
	kmPerDegreeLat = 110.574
)

// DBLocation represents a GeoJSON Point as stored in MongoDB.
// Coordinates are [longitude, latitude], per the GeoJSON convention.
type DBLocation struct {
	Type        string    `bson:"type" json:"type"`
	Coordinates []float64 `bson:"coordinates" json:"coordinates"`
}

// IsZero reports whether the location is unset. The bson encoder uses it to
// omit empty locations entirely, which keeps the 2dsphere index from choking
// on malformed GeoJSON for users that never shared a position.
func (l DBLocation) IsZero() bool {
	return l.Type == "" && len(l.Coordinates) == 0
}

// NewDBLocation builds a GeoJSON Point from latitude and longitude in degrees.
func NewDBLocation(latitude, longitude float64) DBLocation {
	return DBLocation{
		Type:        "Point",
		Coordinates: []float64{longitude, latitude},
	}
}

// Latitude returns the latitude of the point in degrees.
func (l DBLocation) Latitude() float64 {
	if len(l.Coordinates) < 2 {
		return 0
	}
	return l.Coordinates[1]
}

// Longitude returns the longitude of the point in degrees.
func (l DBLocation) Longitude() float64 {
	if len(l.Coordinates) < 2 {
		return 0
	}
	return l.Coordinates[0]
}

// ValidCoordinates reports whether latitude and longitude are within valid
// geographic ranges.
func ValidCoordinates(latitude, longitude float64) bool {
	return latitude >= -90 && latitude <= 90 && longitude >= -180 && longitude <= 180
}

// HaversineDistanceKm returns the geodesic distance between two points in
// kilometers, computed with the Haversine formula on a sphere of radius
// earthRadiusKm. This is the single authoritative distance formula: the query
// service, the client safety-net filter and the tests all use it.
func HaversineDistanceKm(a, b DBLocation) float64 {
	lat1 := a.Latitude() * (math.Pi / 180)
	long1 := a.Longitude() * (math.Pi / 180)
	lat2 := b.Latitude() * (math.Pi / 180)
	long2 := b.Longitude() * (math.Pi / 180)

	h := math.Sin((lat2-lat1)/2)*math.Sin((lat2-lat1)/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin((long2-long1)/2)*math.Sin((long2-long1)/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c
}

// WithinRadiusKm reports whether two points are within radiusKm of each other,
// using the exact Haversine distance.
func WithinRadiusKm(a, b DBLocation, radiusKm float64) bool {
	return HaversineDistanceKm(a, b) <= radiusKm
}

// boundingBox is a degree-space rectangle that fully contains the circle of
// radiusKm around center. It is intentionally loose: candidates inside the box
// may still be farther than radiusKm and must pass the exact Haversine check.
type boundingBox struct {
	minLat, maxLat   float64
	minLong, maxLong float64

	// crossesAntimeridian marks a box whose longitude span wrapped past
	// ±180. minLong is then numerically greater than maxLong and the match
	// is the union of [minLong, 180] and [-180, maxLong].
	crossesAntimeridian bool
}

func newBoundingBox(center DBLocation, radiusKm float64) boundingBox {
	latDelta := radiusKm / kmPerDegreeLat

	// Longitude degrees shrink with latitude; clamp the cosine so the box
	// stays finite near the poles.
	cosLat := math.Cos(center.Latitude() * (math.Pi / 180))
	if cosLat < 0.01 {
		cosLat = 0.01
	}
	longDelta := radiusKm / (kmPerDegreeLat * cosLat)

	box := boundingBox{
		minLat: math.Max(center.Latitude()-latDelta, -90),
		maxLat: math.Min(center.Latitude()+latDelta, 90),
	}
	if longDelta >= 180 {
		box.minLong, box.maxLong = -180, 180
		return box
	}

	box.minLong = center.Longitude() - longDelta
	box.maxLong = center.Longitude() + longDelta
	// Wrap, don't clamp: clamping at ±180 would drop in-radius points on the
	// far side of the antimeridian.
	if box.minLong < -180 {
		box.minLong += 360
		box.crossesAntimeridian = true
	}
	if box.maxLong > 180 {
		box.maxLong -= 360
		box.crossesAntimeridian = true
	}
	return box
}

// applyTo adds the box's coordinate conditions to a Mongo filter. The
// coordinate fields follow the GeoJSON order: index 0 is longitude, index 1
// latitude. A box crossing the antimeridian matches two disjoint longitude
// ranges.
func (b boundingBox) applyTo(filter bson.M) {
	filter["location.coordinates.1"] = bson.M{"$gte": b.minLat, "$lte": b.maxLat}
	if !b.crossesAntimeridian {
		filter["location.coordinates.0"] = bson.M{"$gte": b.minLong, "$lte": b.maxLong}
		return
	}
	filter["$or"] = bson.A{
		bson.M{"location.coordinates.0": bson.M{"$gte": b.minLong}},
		bson.M{"location.coordinates.0": bson.M{"$lte": b.maxLong}},
	}
}
