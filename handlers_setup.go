package main

import (
	"errors"
	"net/http"
	"strings"

	"github.com/example/healthtracker/internal/identity"
	"github.com/example/healthtracker/internal/models"
)

// identityFailure reports an identity provider refusal as 400 and anything
// else as 500.
func (a *App) identityFailure(w http.ResponseWriter, r *http.Request, err error) {
	var idErr *identity.Error
	if errors.As(err, &idErr) {
		badRequest(w, strings.Join(idErr.Descriptions, " "))
		return
	}
	a.Log.Error(r.Context(), "identity operation failed", "path", r.URL.Path, "error", err)
	somethingWentWrong(w)
}

// userByEmail resolves the email query parameter, writing the failure itself
// when it returns nil.
func (a *App) userByEmail(w http.ResponseWriter, r *http.Request) *models.User {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		badRequest(w, msgInvalidRequest)
		return nil
	}
	u, err := a.Identity.FindByEmail(r.Context(), email)
	if err != nil {
		a.identityFailure(w, r, err)
		return nil
	}
	if u == nil {
		writeFailure(w, http.StatusNotFound, errTypeProfile, "UserNotFound", msgUserNotFound)
		return nil
	}
	return u
}

// GET /api/v1/setup
func (a *App) HandleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := a.Identity.Roles(r.Context())
	if err != nil {
		a.identityFailure(w, r, err)
		return
	}
	if roles == nil {
		roles = []*models.Role{}
	}
	writeResult(w, http.StatusOK, roles)
}

// POST /api/v1/setup?name=
func (a *App) HandleCreateRole(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		badRequest(w, msgInvalidRequest)
		return
	}
	exists, err := a.Identity.RoleExists(r.Context(), name)
	if err != nil {
		a.identityFailure(w, r, err)
		return
	}
	if exists {
		badRequest(w, msgRoleExists)
		return
	}
	role, err := a.Identity.CreateRole(r.Context(), name)
	if err != nil {
		a.identityFailure(w, r, err)
		return
	}
	a.Log.Info(r.Context(), "role created", "role", role.Name)
	writeResult(w, http.StatusOK, role)
}

// GET /api/v1/setup/getallusers
func (a *App) HandleListIdentities(w http.ResponseWriter, r *http.Request) {
	users, err := a.Identity.Users(r.Context())
	if err != nil {
		a.identityFailure(w, r, err)
		return
	}
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, userResponse{ID: u.ID, Email: u.Email, EmailConfirmed: u.EmailConfirmed, CreatedAt: u.CreatedAt})
	}
	writeResult(w, http.StatusOK, out)
}

// POST /api/v1/setup/addusertorole?email=&roleName=
func (a *App) HandleAddUserToRole(w http.ResponseWriter, r *http.Request) {
	u := a.userByEmail(w, r)
	if u == nil {
		return
	}
	role := r.URL.Query().Get("roleName")
	if err := a.Identity.AddToRole(r.Context(), u, role); err != nil {
		a.identityFailure(w, r, err)
		return
	}
	writeResult(w, http.StatusOK, "User "+u.Email+" added to role "+role)
}

// GET /api/v1/setup/getuserroles?email=
func (a *App) HandleGetUserRoles(w http.ResponseWriter, r *http.Request) {
	u := a.userByEmail(w, r)
	if u == nil {
		return
	}
	roles, err := a.Identity.GetRoles(r.Context(), u)
	if err != nil {
		a.identityFailure(w, r, err)
		return
	}
	if roles == nil {
		roles = []string{}
	}
	writeResult(w, http.StatusOK, roles)
}

// DELETE /api/v1/setup/removeuserfromrole?email=&roleName=
func (a *App) HandleRemoveUserFromRole(w http.ResponseWriter, r *http.Request) {
	u := a.userByEmail(w, r)
	if u == nil {
		return
	}
	role := r.URL.Query().Get("roleName")
	if err := a.Identity.RemoveFromRole(r.Context(), u, role); err != nil {
		a.identityFailure(w, r, err)
		return
	}
	writeResult(w, http.StatusOK, "User "+u.Email+" removed from role "+role)
}

// GET /api/v1/claimssetup?email=
func (a *App) HandleGetUserClaims(w http.ResponseWriter, r *http.Request) {
	u := a.userByEmail(w, r)
	if u == nil {
		return
	}
	claims, err := a.Identity.GetClaims(r.Context(), u)
	if err != nil {
		a.identityFailure(w, r, err)
		return
	}
	if claims == nil {
		claims = []models.Claim{}
	}
	writeResult(w, http.StatusOK, claims)
}

// POST /api/v1/claimssetup/addclaimstouser?email=&claimName=&claimValue=
func (a *App) HandleAddClaimToUser(w http.ResponseWriter, r *http.Request) {
	u := a.userByEmail(w, r)
	if u == nil {
		return
	}
	q := r.URL.Query()
	c := models.Claim{Type: strings.TrimSpace(q.Get("claimName")), Value: q.Get("claimValue")}
	if err := a.Identity.AddClaim(r.Context(), u, c); err != nil {
		a.identityFailure(w, r, err)
		return
	}
	writeResult(w, http.StatusOK, c)
}
