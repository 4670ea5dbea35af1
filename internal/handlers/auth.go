package handlers

import (
	"errors"
	"net/http"

	"github.com/courtvision/nba-analysis/internal/logic"
	"github.com/courtvision/nba-analysis/internal/models"
)

// Signup creates a user account
// @Summary Sign Up
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body models.SignupRequest true "Credentials"
// @Success 201 {object} models.SignupResponse
// @Failure 400 {object} map[string]string "Username already exists"
// @Router /auth/signup [post]
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req models.SignupRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	if err := h.auth.Signup(r.Context(), req.Username, req.Password); err != nil {
		if errors.Is(err, logic.ErrUsernameTaken) {
			h.errorResponse(w, http.StatusBadRequest, "Username already exists")
			return
		}
		h.logger.Errorw("Failed to create user", "error", err)
		h.errorResponse(w, http.StatusInternalServerError, "Failed to create user")
		return
	}

	h.jsonResponse(w, http.StatusCreated, models.SignupResponse{Message: "User created successfully"})
}

// Login exchanges credentials for a bearer access token
// @Summary Log In
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body models.LoginRequest true "Credentials"
// @Success 200 {object} models.TokenResponse
// @Failure 401 {object} map[string]string "Invalid credentials"
// @Router /auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	token, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, logic.ErrInvalidCredentials) {
			h.errorResponse(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		h.logger.Errorw("Failed to log in", "error", err)
		h.errorResponse(w, http.StatusInternalServerError, "Failed to log in")
		return
	}

	h.jsonResponse(w, http.StatusOK, token)
}
