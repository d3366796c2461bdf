package api

import (
	chiprometheus "github.com/766b/chi-prometheus"
	"github.com/go-chi/chi/v5"
)

// enablePrometheus attaches the go-chi prometheus middleware to the router.
func (a *API) enablePrometheus(r *chi.Mux) {
	r.Use(chiprometheus.NewMiddleware(a.prometheusID))
}
