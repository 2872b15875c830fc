package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/example/healthtracker/internal/auth"
)

// writeAuthResult answers an accounts endpoint: 200 with the token pair on
// success, 400 with the reasons otherwise.
func (a *App) writeAuthResult(w http.ResponseWriter, r *http.Request, res *auth.Result) {
	if res.Success {
		writeJSON(w, http.StatusOK, res)
		return
	}
	a.Log.Debug(r.Context(), "auth request refused", "path", r.URL.Path, "failure", res.Failure.String())
	writeJSON(w, http.StatusBadRequest, res)
}

func invalidPayload(w http.ResponseWriter) {
	writeJSON(w, http.StatusBadRequest, auth.Result{Errors: []string{auth.MsgInvalidPayload}})
}

func decode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func (a *App) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in registrationRequest
	if err := decode(r, &in); err != nil || strings.TrimSpace(in.Email) == "" || in.Password == "" {
		invalidPayload(w)
		return
	}
	res := a.Auth.Register(r.Context(), auth.RegisterInput{
		Email:     in.Email,
		Password:  in.Password,
		FirstName: in.FirstName,
		LastName:  in.LastName,
	})
	a.writeAuthResult(w, r, res)
}

func (a *App) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decode(r, &in); err != nil || strings.TrimSpace(in.Email) == "" || in.Password == "" {
		invalidPayload(w)
		return
	}
	a.writeAuthResult(w, r, a.Auth.Login(r.Context(), in.Email, in.Password))
}

func (a *App) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var in tokenRequest
	if err := decode(r, &in); err != nil || in.Token == "" || in.RefreshToken == "" {
		invalidPayload(w)
		return
	}
	a.writeAuthResult(w, r, a.Auth.Refresh(r.Context(), in.Token, in.RefreshToken))
}

// HandleLogout revokes the caller's refresh token and access token.
func (a *App) HandleLogout(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Bearer token required")
		return
	}
	var in logoutRequest
	if err := decode(r, &in); err != nil || in.RefreshToken == "" {
		invalidPayload(w)
		return
	}

	err := a.Auth.Logout(r.Context(), p, in.RefreshToken)
	switch {
	case errors.Is(err, auth.ErrInvalidRefreshToken):
		writeJSON(w, http.StatusBadRequest, auth.Result{Errors: []string{auth.MsgRefreshTokenNotFound}})
	case err != nil:
		a.Log.Error(r.Context(), "logout failed", "error", err, "user_id", p.UserID)
		writeJSON(w, http.StatusInternalServerError, auth.Result{Errors: []string{auth.MsgProcessing}})
	default:
		writeJSON(w, http.StatusOK, auth.Result{Success: true})
	}
}
