package main

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/healthtracker/internal/models"
	"github.com/example/healthtracker/internal/store"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// inUnit runs fn in a unit of work and commits it when fn succeeds.
func (a *App) inUnit(ctx context.Context, fn func(store.UnitOfWork) error) error {
	unit, err := a.Store.Begin(ctx)
	if err != nil {
		return err
	}
	defer unit.Rollback()
	if err := fn(unit); err != nil {
		return err
	}
	return unit.Commit()
}

func (a *App) storeFailure(w http.ResponseWriter, r *http.Request, err error) {
	a.Log.Error(r.Context(), "store operation failed", "path", r.URL.Path, "error", err)
	somethingWentWrong(w)
}

func userNotFound(w http.ResponseWriter) {
	writeFailure(w, http.StatusNotFound, errTypeProfile, "UserNotFound", msgUserNotFound)
}

func dataNotFound(w http.ResponseWriter) {
	writeFailure(w, http.StatusNotFound, errTypeGeneric, "DataNotFound", msgDataNotFound)
}

// GET /api/v1/profiles
func (a *App) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	var profile *models.Profile
	err := a.inUnit(r.Context(), func(u store.UnitOfWork) (err error) {
		profile, err = u.Profiles().GetByIdentityID(r.Context(), p.UserID)
		return err
	})
	if err != nil {
		a.storeFailure(w, r, err)
		return
	}
	if profile == nil {
		userNotFound(w)
		return
	}
	writeResult(w, http.StatusOK, profile)
}

// PUT /api/v1/profiles
func (a *App) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	var in updateProfileRequest
	if err := decode(r, &in); err != nil {
		badRequest(w, msgInvalidPayload)
		return
	}

	var updated *models.Profile
	err := a.inUnit(r.Context(), func(u store.UnitOfWork) error {
		cur, err := u.Profiles().GetByIdentityID(r.Context(), p.UserID)
		if err != nil || cur == nil {
			return err
		}
		cur.Address = in.Address
		cur.Sex = in.Sex
		cur.MobileNumber = in.MobileNumber
		cur.Country = in.Country
		ok, err := u.Profiles().UpdateProfile(r.Context(), cur)
		if ok {
			updated = cur
		}
		return err
	})
	if err != nil {
		a.storeFailure(w, r, err)
		return
	}
	if updated == nil {
		userNotFound(w)
		return
	}
	writeResult(w, http.StatusOK, updated)
}

// GET /api/v1/users?page=&pageSize=
func (a *App) HandleListProfiles(w http.ResponseWriter, r *http.Request) {
	page, size := pageParams(r)
	var all []*models.Profile
	err := a.inUnit(r.Context(), func(u store.UnitOfWork) (err error) {
		all, err = u.Profiles().All(r.Context())
		return err
	})
	if err != nil {
		a.storeFailure(w, r, err)
		return
	}

	// page*size may overflow, so the offset is bounded before multiplying.
	start := len(all)
	if page-1 < len(all)/size+1 {
		start = min((page-1)*size, len(all))
	}
	end := start + min(size, len(all)-start)
	content := make([]*models.Profile, 0, end-start)
	content = append(content, all[start:end]...)
	writeJSON(w, http.StatusOK, PagedResult[*models.Profile]{Page: page, ResultCount: len(all), Content: content})
}

func pageParams(r *http.Request) (page, size int) {
	page, size = 1, defaultPageSize
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 0 {
		page = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("pageSize")); err == nil && v > 0 {
		size = min(v, maxPageSize)
	}
	return page, size
}

// POST /api/v1/users
func (a *App) HandleCreateProfile(w http.ResponseWriter, r *http.Request) {
	var in createProfileRequest
	if err := decode(r, &in); err != nil || strings.TrimSpace(in.Email) == "" {
		badRequest(w, msgInvalidPayload)
		return
	}
	now := time.Now().UTC()
	profile := &models.Profile{
		Entity:       models.NewEntity(uuid.NewString(), now),
		IdentityID:   in.IdentityID,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Email:        in.Email,
		Phone:        in.Phone,
		DateOfBirth:  in.DateOfBirth,
		Country:      in.Country,
		Address:      in.Address,
		MobileNumber: in.MobileNumber,
		Sex:          in.Sex,
	}
	if err := a.inUnit(r.Context(), func(u store.UnitOfWork) error {
		return u.Profiles().Add(r.Context(), profile)
	}); err != nil {
		a.storeFailure(w, r, err)
		return
	}
	writeResult(w, http.StatusCreated, profile)
}

// GET /api/v1/users/getuser?id=
func (a *App) HandleGetProfileByID(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		badRequest(w, msgInvalidRequest)
		return
	}
	var profile *models.Profile
	err := a.inUnit(r.Context(), func(u store.UnitOfWork) (err error) {
		profile, err = u.Profiles().GetByID(r.Context(), id)
		return err
	})
	if err != nil {
		a.storeFailure(w, r, err)
		return
	}
	if profile == nil {
		userNotFound(w)
		return
	}
	writeResult(w, http.StatusOK, profile)
}

// GET /api/v1/healthdata
func (a *App) HandleListHealthData(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	var records []*models.HealthData
	err := a.inUnit(r.Context(), func(u store.UnitOfWork) (err error) {
		records, err = u.HealthData().AllForIdentity(r.Context(), p.UserID)
		return err
	})
	if err != nil {
		a.storeFailure(w, r, err)
		return
	}
	if records == nil {
		records = []*models.HealthData{}
	}
	writeResult(w, http.StatusOK, records)
}

// POST /api/v1/healthdata
func (a *App) HandleAddHealthData(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	var in healthDataRequest
	if err := decode(r, &in); err != nil {
		badRequest(w, msgInvalidPayload)
		return
	}
	h := &models.HealthData{
		Entity:     models.NewEntity(uuid.NewString(), time.Now().UTC()),
		IdentityID: p.UserID,
		BloodType:  in.BloodType,
		Height:     in.Height,
		Race:       in.Race,
		Weight:     in.Weight,
		UseGlasses: in.UseGlasses,
	}
	if err := a.inUnit(r.Context(), func(u store.UnitOfWork) error {
		return u.HealthData().Add(r.Context(), h)
	}); err != nil {
		a.storeFailure(w, r, err)
		return
	}
	writeResult(w, http.StatusCreated, h)
}

// PUT /api/v1/healthdata/{id}
func (a *App) HandleUpdateHealthData(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	id := mux.Vars(r)["id"]
	var in healthDataRequest
	if err := decode(r, &in); err != nil {
		badRequest(w, msgInvalidPayload)
		return
	}

	var updated *models.HealthData
	err := a.inUnit(r.Context(), func(u store.UnitOfWork) error {
		cur, err := u.HealthData().GetByID(r.Context(), id)
		if err != nil || cur == nil || cur.IdentityID != p.UserID {
			return err
		}
		cur.BloodType = in.BloodType
		cur.Height = in.Height
		cur.Race = in.Race
		cur.Weight = in.Weight
		cur.UseGlasses = in.UseGlasses
		ok, err := u.HealthData().Update(r.Context(), cur)
		if ok {
			updated = cur
		}
		return err
	})
	if err != nil {
		a.storeFailure(w, r, err)
		return
	}
	if updated == nil {
		dataNotFound(w)
		return
	}
	writeResult(w, http.StatusOK, updated)
}
