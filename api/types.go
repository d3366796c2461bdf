package api

import (
	"time"

	"github.com/driftapp/drift-app-backend/db"
)

// Response is the default response of the API
type Response struct {
	Header ResponseHeader `json:"header"`
	Data   any            `json:"data,omitempty"`
}

// ResponseHeader is the header of the response
type ResponseHeader struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type Register struct {
	Email             string    `json:"email"`
	Name              string    `json:"name"`
	Password          string    `json:"password"`
	RegisterAuthToken string    `json:"invitationToken"`
	Location          *Location `json:"location,omitempty"`
}

type Login struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token    string    `json:"token"`
	Expirity time.Time `json:"expirity"`
}

// Location represents a GeoJSON Point
type Location struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// Valid reports whether the location is a well-formed GeoJSON Point. The
// shape check must run before any range check: a missing location decodes to
// the zero value, whose (0,0) coordinates would pass the range check and die
// at the 2dsphere index instead of answering a validation error.
func (l *Location) Valid() bool {
	return l != nil && l.Type == "Point" && len(l.Coordinates) == 2
}

// ToDBLocation converts an API Location to a DB Location
func (l *Location) ToDBLocation() db.DBLocation {
	if l == nil {
		return db.DBLocation{
			Type:        "Point",
			Coordinates: []float64{0, 0},
		}
	}
	return db.DBLocation{
		Type:        l.Type,
		Coordinates: l.Coordinates,
	}
}

// FromDBLocation converts a DB Location to an API Location
func FromDBLocation(l db.DBLocation) *Location {
	return &Location{
		Type:        l.Type,
		Coordinates: l.Coordinates,
	}
}

// CreatePost is the request body for creating a new post.
type CreatePost struct {
	Content  string   `json:"content"`
	Location Location `json:"location"`
}

// Post is the wire representation of a post. DistanceKm is only set on
// proximity query results; it is computed against the query center and never
// stored.
type Post struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"ownerId"`
	Content    string    `json:"content"`
	Location   Location  `json:"location"`
	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
	DistanceKm *float64  `json:"distanceKm,omitempty"`
}

type PostsWrapper struct {
	Posts []Post `json:"posts"`
}

// NearbyUser is the wire representation of a proximity user result.
type NearbyUser struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Location   Location  `json:"location"`
	DistanceKm float64   `json:"distanceKm"`
	LastSeen   time.Time `json:"lastSeen,omitempty"`
}

type NearbyUsersWrapper struct {
	Users []NearbyUser `json:"users"`
}

// UpdateLocation is the request body for pushing a fresh location fix.
// CapturedAt defaults to the server time when omitted.
type UpdateLocation struct {
	Location   Location   `json:"location"`
	CapturedAt *time.Time `json:"capturedAt,omitempty"`
}

// UpdateLocationResponse reports whether the fix was applied. A stale fix
// (older than the stored one) is discarded, not an error.
type UpdateLocationResponse struct {
	Updated bool `json:"updated"`
}

type Info struct {
	Users int `json:"users"`
	Posts int `json:"posts"`
}

func postFromDB(p *db.Post) Post {
	return Post{
		ID:        p.ID.Hex(),
		OwnerID:   p.OwnerID.Hex(),
		Content:   p.Content,
		Location:  *FromDBLocation(p.Location),
		CreatedAt: p.CreatedAt,
		ExpiresAt: p.ExpiresAt,
	}
}

func nearbyPostFromDB(np *db.NearbyPost) Post {
	post := postFromDB(np.Post)
	distance := np.DistanceKm
	post.DistanceKm = &distance
	return post
}

func nearbyUserFromDB(nu *db.NearbyUser) NearbyUser {
	return NearbyUser{
		ID:         nu.User.ID.Hex(),
		Name:       nu.User.Name,
		Location:   *FromDBLocation(nu.User.Location),
		DistanceKm: nu.DistanceKm,
		LastSeen:   nu.User.LastSeen,
	}
}
