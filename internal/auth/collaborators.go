// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package auth

import (
	"context"
	"time"
)

// VerificationMail is the data needed to send an email-verification message.
// Token is already encrypted and safe to embed in a link.
type VerificationMail struct {
	To        string
	Name      string
	Token     string
	ExpiresAt time.Time
}

// Mailer delivers outbound email.
type Mailer interface {
	SendVerification(ctx context.Context, mail VerificationMail) error
}

// Identity is what an external identity provider vouches for.
type Identity struct {
	Email         string
	Name          string
	EmailVerified bool
	Subject       string
}

// IdentityVerifier validates a third-party ID token.
type IdentityVerifier interface {
	Verify(ctx context.Context, idToken string) (*Identity, error)
}

// Observer receives authentication events for metrics.
type Observer interface {
	SigninAttempt(method, outcome string)
	SessionRotated()
	MailFailed(kind string)
}

// Signin methods and outcomes reported to the Observer.
const (
	MethodCredential   = "credential"
	MethodGoogle       = "google"
	MethodVerification = "verification"

	OutcomeSuccess = "success"
	OutcomeInvalid = "invalid"
	OutcomeError   = "error"
)

type nopObserver struct{}

func (nopObserver) SigninAttempt(string, string) {}
func (nopObserver) SessionRotated()              {}
func (nopObserver) MailFailed(string)            {}
