package main

import "time"

type registrationRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// tokenRequest carries the expired access token and its paired refresh token.
type tokenRequest struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type createProfileRequest struct {
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

type updateProfileRequest struct {
	Country      string `json:"country"`
	Address      string `json:"address"`
	MobileNumber string `json:"mobileNumber"`
	Sex          string `json:"sex"`
}

type healthDataRequest struct {
	BloodType  string  `json:"bloodType"`
	Height     float64 `json:"height"`
	Race       string  `json:"race"`
	Weight     float64 `json:"weight"`
	UseGlasses bool    `json:"useGlasses"`
}

// userResponse lists an identity without its credentials.
type userResponse struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	EmailConfirmed bool      `json:"emailConfirmed"`
	CreatedAt      time.Time `json:"createdAt"`
}
