package test

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/driftapp/drift-app-backend/api"
	"github.com/driftapp/drift-app-backend/test/utils"
	qt "github.com/frankban/quicktest"
)

func TestLocationUpdate(t *testing.T) {
	c := utils.NewTestService(t)
	jwt := registerAndLogin(t, c, "mover@test.com", "mover", "moverpass")

	base := time.Now()
	later := base.Add(time.Minute)
	earlier := base.Add(-time.Minute)

	push := func(lat, lng float64, capturedAt time.Time) (bool, int) {
		resp, code := c.Request(http.MethodPost, jwt,
			&api.UpdateLocation{Location: point(lat, lng), CapturedAt: &capturedAt},
			"profile", "location",
		)
		var result struct {
			Data api.UpdateLocationResponse `json:"data"`
		}
		if code == 200 {
			err := json.Unmarshal(resp, &result)
			qt.Assert(t, err, qt.IsNil)
		}
		return result.Data.Updated, code
	}

	// a first fix lands
	updated, code := push(41.3851, 2.1734, base)
	qt.Assert(t, code, qt.Equals, 200)
	qt.Assert(t, updated, qt.IsTrue)

	// a newer fix overwrites it
	updated, code = push(41.39, 2.18, later)
	qt.Assert(t, code, qt.Equals, 200)
	qt.Assert(t, updated, qt.IsTrue)

	// a reordered older fix is reported as not applied, not as an error
	updated, code = push(41.0, 2.0, earlier)
	qt.Assert(t, code, qt.Equals, 200)
	qt.Assert(t, updated, qt.IsFalse)

	// the stored position is the newest one
	resp, code := c.Request(http.MethodGet, jwt, nil, "profile")
	qt.Assert(t, code, qt.Equals, 200)
	var profile struct {
		Data struct {
			Location api.Location `json:"location"`
		} `json:"data"`
	}
	err := json.Unmarshal(resp, &profile)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, profile.Data.Location.Coordinates[1], qt.Equals, 41.39)

	// out-of-range coordinates are rejected
	_, code = push(95.0, 2.0, later.Add(time.Minute))
	qt.Assert(t, code, qt.Equals, 400)

	// a body without a location is a validation error, not a database one
	_, code = c.Request(http.MethodPost, jwt, &api.UpdateLocation{}, "profile", "location")
	qt.Assert(t, code, qt.Equals, 400)

	// a non-Point geometry is rejected too
	_, code = c.Request(http.MethodPost, jwt,
		&api.UpdateLocation{Location: api.Location{Type: "LineString", Coordinates: []float64{2.0, 41.0}}},
		"profile", "location",
	)
	qt.Assert(t, code, qt.Equals, 400)
}

func TestNearbyUsers(t *testing.T) {
	c := utils.NewTestService(t)
	callerJWT := registerAndLogin(t, c, "caller@test.com", "caller", "callerpass")
	nearJWT := registerAndLogin(t, c, "near@test.com", "Alice Near", "nearpass")
	farJWT := registerAndLogin(t, c, "far@test.com", "Bob Far", "farpass")

	pushAs := func(jwt string, lat, lng float64) {
		capturedAt := time.Now()
		_, code := c.Request(http.MethodPost, jwt,
			&api.UpdateLocation{Location: point(lat, lng), CapturedAt: &capturedAt},
			"profile", "location",
		)
		qt.Assert(t, code, qt.Equals, 200)
	}

	pushAs(callerJWT, 41.3851, 2.1734)
	pushAs(nearJWT, 41.39, 2.18)
	// ~55 km north: inside the 60 km maximum, outside 10 km.
	pushAs(farJWT, 41.8795, 2.1734)

	query := func(radius string, extra string) []api.NearbyUser {
		q := "lat=41.3851&lng=2.1734&radiusKm=" + radius + extra
		resp, code := c.RequestQuery(http.MethodGet, callerJWT, q, "users", "nearby")
		qt.Assert(t, code, qt.Equals, 200, qt.Commentf("Response: %s", string(resp)))
		var nearby struct {
			Data api.NearbyUsersWrapper `json:"data"`
		}
		err := json.Unmarshal(resp, &nearby)
		qt.Assert(t, err, qt.IsNil)
		return nearby.Data.Users
	}

	// a 10 km radius finds only the near user; the caller never sees itself
	users := query("10", "")
	qt.Assert(t, users, qt.HasLen, 1)
	qt.Assert(t, users[0].Name, qt.Equals, "Alice Near")
	qt.Assert(t, users[0].DistanceKm > 0, qt.IsTrue)

	// 60 km reaches both, nearest first
	users = query("60", "")
	qt.Assert(t, users, qt.HasLen, 2)
	qt.Assert(t, users[0].Name, qt.Equals, "Alice Near")
	qt.Assert(t, users[1].Name, qt.Equals, "Bob Far")

	// a requested 500 km is clamped to the 60 km maximum, not widened
	users = query("500", "")
	qt.Assert(t, users, qt.HasLen, 2)

	// the term narrows results, it never widens the radius
	users = query("60", "&term=bob")
	qt.Assert(t, users, qt.HasLen, 1)
	qt.Assert(t, users[0].Name, qt.Equals, "Bob Far")
	users = query("10", "&term=bob")
	qt.Assert(t, users, qt.HasLen, 0)
}

func TestInfoEndpoint(t *testing.T) {
	c := utils.NewTestService(t)
	jwt := registerAndLogin(t, c, "counter@test.com", "counter", "counterpass")

	_, code := c.Request(http.MethodPost, jwt,
		&api.CreatePost{Content: "counted", Location: point(41.3851, 2.1734)},
		"posts",
	)
	qt.Assert(t, code, qt.Equals, 200)

	resp, code := c.Request(http.MethodGet, "", nil, "info")
	qt.Assert(t, code, qt.Equals, 200)
	var info struct {
		Data api.Info `json:"data"`
	}
	err := json.Unmarshal(resp, &info)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, info.Data.Users, qt.Equals, 1)
	qt.Assert(t, info.Data.Posts, qt.Equals, 1)
}
