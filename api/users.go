package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/driftapp/drift-app-backend/db"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// RegisterUserRoutes registers all protected user-related routes
func (a *API) RegisterUserRoutes(r chi.Router) {
	log.Info().Msg("register route GET /profile")
	r.Get("/profile", a.routerHandler(a.userProfileHandler))

	log.Info().Msg("register route POST /profile/location")
	r.Post("/profile/location", a.routerHandler(a.updateLocationHandler))

	log.Info().Msg("register route GET /users/nearby")
	r.Get("/users/nearby", a.routerHandler(a.nearbyUsersHandler))

	log.Info().Msg("register route GET /refresh")
	r.Get("/refresh", a.routerHandler(a.refreshHandler))
}

// RegisterPublicUserRoutes registers the public register and login routes
func (a *API) RegisterPublicUserRoutes(r chi.Router) {
	log.Info().Msg("register route POST /register")
	r.Post("/register", a.routerHandler(a.registerHandler))

	log.Info().Msg("register route POST /login")
	r.Post("/login", a.routerHandler(a.loginHandler))
}

// POST /register creates a new user in the database.
func (a *API) registerHandler(r *Request) (interface{}, error) {
	userInfo := Register{}
	if err := json.Unmarshal(r.Data, &userInfo); err != nil {
		return nil, ErrInvalidJSON.WithErr(err)
	}
	if userInfo.RegisterAuthToken != a.registerAuthToken {
		return nil, ErrInvalidRegisterAuthToken
	}
	user := db.User{
		Email:    userInfo.Email,
		Name:     userInfo.Name,
		Password: hashPassword(userInfo.Password),
		Active:   true,
	}
	if userInfo.Location != nil {
		if !userInfo.Location.Valid() {
			return nil, ErrInvalidCoordinates.WithErr(
				fmt.Errorf("malformed GeoJSON point: type %q, %d coordinates", userInfo.Location.Type, len(userInfo.Location.Coordinates)),
			)
		}
		location := userInfo.Location.ToDBLocation()
		if !db.ValidCoordinates(location.Latitude(), location.Longitude()) {
			return nil, ErrInvalidCoordinates.WithErr(
				fmt.Errorf("coordinates %f,%f out of range", location.Latitude(), location.Longitude()),
			)
		}
		user.Location = location
		user.LocationUpdatedAt = time.Now()
	}
	if err := user.Validate(); err != nil {
		return nil, ErrInvalidRequestBodyData.WithErr(err)
	}
	log.Debug().Msgf("adding user %s", user.Email)
	if _, err := a.database.UserService.InsertUser(context.Background(), &user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrInvalidRequestBodyData.WithErr(fmt.Errorf("email or name already registered"))
		}
		return nil, ErrCouldNotInsertToDatabase.WithErr(err)
	}
	return nil, nil
}

// POST /login returns a JWT token if the login is successful.
func (a *API) loginHandler(r *Request) (interface{}, error) {
	loginInfo := Login{}
	if err := json.Unmarshal(r.Data, &loginInfo); err != nil {
		return nil, ErrInvalidJSON.WithErr(err)
	}
	user, err := a.database.UserService.GetUserByEmail(context.Background(), loginInfo.Email)
	if err != nil {
		return nil, ErrWrongLogin.WithErr(err)
	}
	if !bytes.Equal(user.Password, hashPassword(loginInfo.Password)) {
		return nil, ErrWrongLogin.WithErr(fmt.Errorf("password mismatch"))
	}
	token, err := a.makeToken(user.ID.Hex())
	if err != nil {
		return nil, err
	}
	return token, nil
}

// GET /refresh returns a new JWT token.
func (a *API) refreshHandler(r *Request) (interface{}, error) {
	token, err := a.makeToken(r.UserID)
	if err != nil {
		return nil, err
	}
	return token, nil
}

// GET /profile returns the caller's profile.
func (a *API) userProfileHandler(r *Request) (interface{}, error) {
	user, err := a.getUserByID(r.UserID)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// POST /profile/location overwrites the caller's current position with a
// fresh fix. The previous position is discarded; a fix older than the stored
// one is reported as not applied rather than failing the request.
func (a *API) updateLocationHandler(r *Request) (interface{}, error) {
	userID, err := primitive.ObjectIDFromHex(r.UserID)
	if err != nil {
		return nil, ErrUnauthorized.WithErr(fmt.Errorf("invalid user ID"))
	}

	req := UpdateLocation{}
	if err := json.Unmarshal(r.Data, &req); err != nil {
		return nil, ErrInvalidJSON.WithErr(err)
	}
	if !req.Location.Valid() {
		return nil, ErrInvalidCoordinates.WithErr(
			fmt.Errorf("malformed GeoJSON point: type %q, %d coordinates", req.Location.Type, len(req.Location.Coordinates)),
		)
	}
	location := req.Location.ToDBLocation()
	if !db.ValidCoordinates(location.Latitude(), location.Longitude()) {
		return nil, ErrInvalidCoordinates.WithErr(
			fmt.Errorf("coordinates %f,%f out of range", location.Latitude(), location.Longitude()),
		)
	}
	capturedAt := time.Now()
	if req.CapturedAt != nil {
		capturedAt = *req.CapturedAt
	}

	err = a.database.UserService.UpdateLocation(context.Background(), userID, location, capturedAt)
	switch err {
	case nil:
		return &UpdateLocationResponse{Updated: true}, nil
	case db.ErrStaleLocation:
		return &UpdateLocationResponse{Updated: false}, nil
	case db.ErrUserNotFound:
		return nil, ErrUserNotFound.WithErr(fmt.Errorf("user %s not found", r.UserID))
	default:
		return nil, ErrInternalServerError.WithErr(err)
	}
}

// GET /users/nearby returns active users within radiusKm of the given center,
// nearest first. The caller is always excluded. The optional term parameter
// narrows results by a case-insensitive name match. The radius is clamped
// server-side to [MinRadiusKm, MaxUserRadiusKm].
func (a *API) nearbyUsersHandler(r *Request) (interface{}, error) {
	userID, err := primitive.ObjectIDFromHex(r.UserID)
	if err != nil {
		return nil, ErrUnauthorized.WithErr(fmt.Errorf("invalid user ID"))
	}
	center, err := parseCenter(r)
	if err != nil {
		return nil, err
	}
	radiusKm, err := parseRadiusKm(r, MaxUserRadiusKm)
	if err != nil {
		return nil, err
	}
	term := ""
	if termParam := r.Context.URLParam("term"); termParam != nil {
		term = db.SanitizeString(termParam[0])
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	results, err := a.database.UserService.SearchNearbyUsers(ctx, center, radiusKm, userID, term)
	if err != nil {
		return nil, ErrInternalServerError.WithErr(err)
	}

	users := make([]NearbyUser, len(results))
	for i, nu := range results {
		users[i] = nearbyUserFromDB(nu)
	}
	return &NearbyUsersWrapper{Users: users}, nil
}

func (a *API) getUserByID(userID string) (*db.User, error) {
	id, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, ErrUnauthorized.WithErr(fmt.Errorf("invalid user ID"))
	}
	user, err := a.database.UserService.GetUserByID(context.Background(), id)
	if err == db.ErrUserNotFound {
		return nil, ErrUserNotFound.WithErr(fmt.Errorf("user %s not found", userID))
	}
	if err != nil {
		return nil, ErrInternalServerError.WithErr(err)
	}
	return user, nil
}
