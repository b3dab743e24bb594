package routes

import (
	"net/http"

	"velvet/velvet/middlewares"
	"velvet/velvet/services/bcrp"
	"velvet/velvet/utils/types"

	"github.com/go-chi/chi/v5"
)

func BCRPRoutes(client *bcrp.Client, verifier middlewares.TokenVerifier) chi.Router {
	r := chi.NewRouter()
	r.Use(middlewares.AuthMiddleware(verifier))

	r.Post("/series", func(w http.ResponseWriter, r *http.Request) {
		var req types.SeriesRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		res, err := client.GetSeries(r.Context(), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	})
	return r
}
