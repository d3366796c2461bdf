package api

import (
	"fmt"
	"strconv"

	"github.com/driftapp/drift-app-backend/db"
)

// parseCenter extracts and validates the lat/lng query parameters of a
// proximity query. Malformed or out-of-range coordinates are rejected with a
// validation error, never silently corrected.
func parseCenter(r *Request) (db.DBLocation, error) {
	latParam := r.Context.URLParam("lat")
	lngParam := r.Context.URLParam("lng")
	if latParam == nil || lngParam == nil {
		return db.DBLocation{}, ErrInvalidCoordinates.WithErr(fmt.Errorf("missing lat or lng parameter"))
	}
	lat, err := strconv.ParseFloat(latParam[0], 64)
	if err != nil {
		return db.DBLocation{}, ErrInvalidCoordinates.WithErr(fmt.Errorf("invalid lat value: %s", latParam[0]))
	}
	lng, err := strconv.ParseFloat(lngParam[0], 64)
	if err != nil {
		return db.DBLocation{}, ErrInvalidCoordinates.WithErr(fmt.Errorf("invalid lng value: %s", lngParam[0]))
	}
	if !db.ValidCoordinates(lat, lng) {
		return db.DBLocation{}, ErrInvalidCoordinates.WithErr(fmt.Errorf("coordinates %f,%f out of range", lat, lng))
	}
	return db.NewDBLocation(lat, lng), nil
}

// parseRadiusKm extracts the radiusKm query parameter and clamps it into
// [MinRadiusKm, maxKm]. A missing parameter falls back to maxKm; a
// non-numeric or non-positive value is a validation error.
func parseRadiusKm(r *Request, maxKm float64) (float64, error) {
	radiusParam := r.Context.URLParam("radiusKm")
	if radiusParam == nil {
		return maxKm, nil
	}
	radius, err := strconv.ParseFloat(radiusParam[0], 64)
	if err != nil {
		return 0, ErrInvalidSearchRadius.WithErr(fmt.Errorf("invalid radiusKm value: %s", radiusParam[0]))
	}
	if radius <= 0 {
		return 0, ErrInvalidSearchRadius.WithErr(fmt.Errorf("radiusKm must be positive, got %f", radius))
	}
	return clampRadiusKm(radius, maxKm), nil
}

// clampRadiusKm bounds a radius into [MinRadiusKm, maxKm].
func clampRadiusKm(radius, maxKm float64) float64 {
	if radius < MinRadiusKm {
		return MinRadiusKm
	}
	if radius > maxKm {
		return maxKm
	}
	return radius
}
