// velvet/routes/auth.go
package routes

import (
	"net/http"
	"strings"

	"velvet/velvet/controllers"
	"velvet/velvet/middlewares"
	"velvet/velvet/utils/types"

	"github.com/go-chi/chi/v5"
)

// credentials reads a JSON body, or the email/password/name query
// parameters when no body was sent.
func credentials(r *http.Request) (types.RegisterRequest, error) {
	var req types.RegisterRequest
	if r.ContentLength != 0 && strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := decodeJSON(r, &req); err != nil {
			return req, err
		}
		return req, nil
	}
	q := r.URL.Query()
	req.Email = q.Get("email")
	req.Password = q.Get("password")
	req.Name = q.Get("name")
	return req, nil
}

func AuthRoutes(ctrl *controllers.AuthController) chi.Router {
	r := chi.NewRouter()

	r.Post("/login", func(w http.ResponseWriter, r *http.Request) {
		req, err := credentials(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		token, err := ctrl.Login(r.Context(), types.LoginRequest{Email: req.Email, Password: req.Password})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, types.TokenResponse{AccessToken: token, TokenType: "bearer"})
	})

	r.Post("/register", func(w http.ResponseWriter, r *http.Request) {
		req, err := credentials(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		token, userID, err := ctrl.Register(r.Context(), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, types.TokenResponse{AccessToken: token, TokenType: "bearer", UserID: &userID})
	})

	r.Group(func(gr chi.Router) {
		gr.Use(middlewares.AuthMiddleware(ctrl))

		gr.Get("/profile", func(w http.ResponseWriter, r *http.Request) {
			userID, ok := currentUser(w, r)
			if !ok {
				return
			}
			profile, err := ctrl.GetProfile(r.Context(), userID)
			if err != nil {
				writeError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, profile)
		})

		gr.Put("/profile", func(w http.ResponseWriter, r *http.Request) {
			userID, ok := currentUser(w, r)
			if !ok {
				return
			}
			var req types.UpdateProfileRequest
			if err := decodeJSON(r, &req); err != nil {
				writeError(w, r, err)
				return
			}
			profile, err := ctrl.UpdateProfile(r.Context(), userID, req)
			if err != nil {
				writeError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, profile)
		})
	})
	return r
}
