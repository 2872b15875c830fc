// Package models holds the persistent types shared by the store, identity and
// auth packages.
package models

import "time"

// StatusActive marks a row as live. Rows are retired by status, never deleted.
const StatusActive = 1

// Claim is a typed assertion about a user.
type Claim struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// User is an identity record: credentials plus confirmation state.
type User struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	NormalizedEmail string    `json:"-"`
	PasswordHash    string    `json:"-"`
	EmailConfirmed  bool      `json:"emailConfirmed"`
	CreatedAt       time.Time `json:"createdAt"`
}

type Role struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	NormalizedName string `json:"normalizedName"`
}

// Entity carries the columns every domain table shares.
type Entity struct {
	ID         string    `json:"id"`
	Status     int       `json:"status"`
	AddedDate  time.Time `json:"addedDate"`
	UpdateDate time.Time `json:"updateDate"`
}

// RefreshToken is the server-side half of a token pair. JwtID binds it to
// exactly one access token.
type RefreshToken struct {
	Entity
	UserID     string    `json:"userId"`
	Token      string    `json:"token"`
	JwtID      string    `json:"jwtId"`
	IsUsed     bool      `json:"isUsed"`
	IsRevoked  bool      `json:"isRevoked"`
	ExpiryDate time.Time `json:"expiryDate"`
}

// Profile is the health-tracker user record linked to an identity.
type Profile struct {
	Entity
	IdentityID   string    `json:"identityId"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	DateOfBirth  time.Time `json:"dateOfBirth"`
	Country      string    `json:"country"`
	Address      string    `json:"address"`
	MobileNumber string    `json:"mobileNumber"`
	Sex          string    `json:"sex"`
}

type HealthData struct {
	Entity
	IdentityID string  `json:"identityId"`
	BloodType  string  `json:"bloodType"`
	Height     float64 `json:"height"`
	Race       string  `json:"race"`
	Weight     float64 `json:"weight"`
	UseGlasses bool    `json:"useGlasses"`
}

// NewEntity returns an active Entity stamped with now.
func NewEntity(id string, now time.Time) Entity {
	return Entity{ID: id, Status: StatusActive, AddedDate: now, UpdateDate: now}
}
