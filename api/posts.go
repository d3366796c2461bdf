package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/driftapp/drift-app-backend/db"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RegisterPostRoutes registers all post-related routes
func (a *API) RegisterPostRoutes(r chi.Router) {
	log.Info().Msg("register route POST /posts")
	r.Post("/posts", a.routerHandler(a.createPostHandler))

	log.Info().Msg("register route GET /posts/nearby")
	r.Get("/posts/nearby", a.routerHandler(a.nearbyPostsHandler))

	log.Info().Msg("register route GET /posts/feed")
	r.Get("/posts/feed", a.routerHandler(a.friendsFeedHandler))

	log.Info().Msg("register route GET /posts/{id}")
	r.Get("/posts/{id}", a.routerHandler(a.getPostHandler))

	log.Info().Msg("register route DELETE /posts/{id}")
	r.Delete("/posts/{id}", a.routerHandler(a.deletePostHandler))
}

// POST /posts creates a new post at the given location. CreatedAt and
// ExpiresAt are stamped server-side; the post is immediately visible to the
// owner's next query.
func (a *API) createPostHandler(r *Request) (interface{}, error) {
	userID, err := primitive.ObjectIDFromHex(r.UserID)
	if err != nil {
		return nil, ErrUnauthorized.WithErr(fmt.Errorf("invalid user ID"))
	}

	req := CreatePost{}
	if err := json.Unmarshal(r.Data, &req); err != nil {
		return nil, ErrInvalidJSON.WithErr(err)
	}
	if req.Content == "" || len(req.Content) > db.MaxPostContentLength {
		return nil, ErrEmptyPostContent.WithErr(fmt.Errorf("content length %d", len(req.Content)))
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

	if !a.rateLimiter.Allow(r.UserID) {
		return nil, ErrTooManyPosts.WithErr(fmt.Errorf("user %s exceeded post rate limit", r.UserID))
	}

	post, err := a.database.PostService.InsertPost(context.Background(), userID, req.Content, location)
	if err != nil {
		return nil, ErrCouldNotInsertToDatabase.WithErr(err)
	}

	log.Info().
		Str("postId", post.ID.Hex()).
		Str("ownerId", r.UserID).
		Time("expiresAt", post.ExpiresAt).
		Msg("created post")

	response := postFromDB(post)
	return &response, nil
}

// GET /posts/{id} returns a post by id. Expired posts are reported as not
// found even when the sweep has not removed them yet.
func (a *API) getPostHandler(r *Request) (interface{}, error) {
	id, err := a.postIDParam(r)
	if err != nil {
		return nil, err
	}
	post, err := a.database.PostService.GetPostByID(context.Background(), id)
	if err == db.ErrPostNotFound {
		return nil, ErrPostNotFound.WithErr(fmt.Errorf("post %s not found", id.Hex()))
	}
	if err != nil {
		return nil, ErrInternalServerError.WithErr(err)
	}
	response := postFromDB(post)
	return &response, nil
}

// DELETE /posts/{id} deletes a post before its natural expiry. Only the owner
// may delete it.
func (a *API) deletePostHandler(r *Request) (interface{}, error) {
	userID, err := primitive.ObjectIDFromHex(r.UserID)
	if err != nil {
		return nil, ErrUnauthorized.WithErr(fmt.Errorf("invalid user ID"))
	}
	id, err := a.postIDParam(r)
	if err != nil {
		return nil, err
	}

	err = a.database.PostService.DeletePost(context.Background(), id, userID)
	switch err {
	case nil:
		return nil, nil
	case db.ErrPostNotFound:
		return nil, ErrPostNotFound.WithErr(fmt.Errorf("post %s not found", id.Hex()))
	case db.ErrNotPostOwner:
		return nil, ErrPostNotOwned.WithErr(fmt.Errorf("post %s is not owned by user %s", id.Hex(), r.UserID))
	default:
		return nil, ErrInternalServerError.WithErr(err)
	}
}

// GET /posts/nearby returns unexpired posts within radiusKm of the given
// center, newest first. The radius is clamped server-side to
// [MinRadiusKm, MaxPostRadiusKm].
func (a *API) nearbyPostsHandler(r *Request) (interface{}, error) {
	center, err := parseCenter(r)
	if err != nil {
		return nil, err
	}
	radiusKm, err := parseRadiusKm(r, MaxPostRadiusKm)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	results, err := a.database.PostService.SearchNearbyPosts(ctx, center, radiusKm, time.Now())
	if err != nil {
		return nil, ErrInternalServerError.WithErr(err)
	}

	posts := make([]Post, len(results))
	for i, np := range results {
		posts[i] = nearbyPostFromDB(np)
	}
	return &PostsWrapper{Posts: posts}, nil
}

// GET /posts/feed returns the unexpired posts of the caller's friends,
// newest first. The caller's own posts are included so a freshly created post
// shows up on the owner's next query.
func (a *API) friendsFeedHandler(r *Request) (interface{}, error) {
	userID, err := primitive.ObjectIDFromHex(r.UserID)
	if err != nil {
		return nil, ErrUnauthorized.WithErr(fmt.Errorf("invalid user ID"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	friends, err := a.database.UserService.GetFriends(ctx, userID)
	if err == db.ErrUserNotFound {
		return nil, ErrUserNotFound.WithErr(fmt.Errorf("user %s not found", r.UserID))
	}
	if err != nil {
		return nil, ErrInternalServerError.WithErr(err)
	}

	ownerIDs := append(friends, userID)
	results, err := a.database.PostService.GetPostsByOwners(ctx, ownerIDs, time.Now())
	if err != nil {
		return nil, ErrInternalServerError.WithErr(err)
	}

	posts := make([]Post, len(results))
	for i, p := range results {
		posts[i] = postFromDB(p)
	}
	return &PostsWrapper{Posts: posts}, nil
}

func (a *API) postIDParam(r *Request) (primitive.ObjectID, error) {
	idParam := r.Context.URLParam("id")
	if idParam == nil {
		return primitive.NilObjectID, ErrInvalidRequestBodyData.WithErr(fmt.Errorf("missing post id"))
	}
	id, err := primitive.ObjectIDFromHex(idParam[0])
	if err != nil {
		return primitive.NilObjectID, ErrInvalidRequestBodyData.WithErr(fmt.Errorf("invalid post id: %s", idParam[0]))
	}
	return id, nil
}
