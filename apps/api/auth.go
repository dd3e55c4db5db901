package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/etalonmax94/CareConnect-sub003/pkg/auth"
	"github.com/etalonmax94/CareConnect-sub003/pkg/store"
)

type LoginRequest struct {
	UserID string `json:"user_id"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

// handleLogin mints a session token for a staff identity. Name and the
// application-admin capability come from the staff directory; unknown users
// still get a token (the surrounding application owns real authentication,
// this endpoint stands in for it).
func (a *api) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	name := req.UserID
	appAdmin := false
	if st, err := a.store.Staff(r.Context(), req.UserID); err == nil {
		name = st.Name
		appAdmin = st.AppAdmin
	} else if !errors.Is(err, store.ErrStaffNotFound) {
		writeError(w, http.StatusInternalServerError, "staff lookup failed")
		return
	}

	token, err := a.tokens.Generate(req.UserID, name, appAdmin)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{Token: token})
}

// requireAuth validates the bearer token and stores the claims on the request
// context.
func (a *api) requireAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get("Authorization")
		if tokenString == "" {
			writeError(w, http.StatusUnauthorized, "authorization header required")
			return
		}

		claims, err := a.tokens.Validate(auth.FromHeader(tokenString))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), auth.UserKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func claimsFrom(r *http.Request) *auth.Claims {
	claims, _ := r.Context().Value(auth.UserKey).(*auth.Claims)
	return claims
}
