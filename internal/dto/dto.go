// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

// Package dto defines request bodies and validates them with go-playground/validator.
package dto

// Signup is the body of POST /auth/signup.
type Signup struct {
	Email             string `json:"email" validate:"required,email"`
	Name              string `json:"name" validate:"required,max=100"`
	Password          string `json:"password" validate:"required,min=8,password"`
	ReconfirmPassword string `json:"reconfirm_password" validate:"required,eqfield=Password"`
}

// Signin is the body of POST /auth/signin.
type Signin struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,password"`
}

// GoogleSignin is the body of POST /auth/signin/google.
type GoogleSignin struct {
	IDToken string `json:"id_token" validate:"required"`
}

// VerifyEmail is the body of POST /users/verify-email.
type VerifyEmail struct {
	Token string `json:"token" validate:"required"`
}

// ResetPassword is the body of PATCH /users/reset-password. old_password
// must be present but may be empty for accounts that have no password yet.
type ResetPassword struct {
	OldPassword       *string `json:"old_password" validate:"required"`
	Password          string `json:"password" validate:"required,min=8,password"`
	ReconfirmPassword string `json:"reconfirm_password" validate:"required,eqfield=Password"`
}

// EditProfile is the body of PATCH /users/profile.
type EditProfile struct {
	Name string `json:"name" validate:"required,max=100"`
}

// Query holds pagination parameters. Zero values take the defaults.
type Query struct {
	Page  int `query:"page" json:"page" validate:"gte=0"`
	Limit int `query:"limit" json:"limit" validate:"gte=0,lte=100"`
}

// Pagination defaults.
const (
	DefaultPage  = 1
	DefaultLimit = 25
)

// Normalize fills zero fields with the defaults.
func (q *Query) Normalize() {
	if q.Page <= 0 {
		q.Page = DefaultPage
	}
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
}
