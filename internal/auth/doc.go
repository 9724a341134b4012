// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

// Package auth implements Turnstile's authentication state machine.
//
// # Domain Types
//
// User, Session and VerificationToken are persisted through the
// UserRepository, SessionRepository and TokenRepository interfaces.
// Repositories never return password hashes with a User; credentials are
// fetched separately with GetCredentials or GetPasswordHash.
//
// # Sessions
//
// A session cookie carries the hashed session id. Each Session record lives
// for the session policy and is rotated by CheckAuthSession when it expires,
// as long as the login is still inside the auth policy measured from the
// user's signed_in_at.
//
// # Service
//
// Service coordinates signup, sign-in, Google sign-in, email verification,
// password reset and profile operations. Create it with NewService, which
// validates dependencies and policies. Verification mail is sent in the
// background; Close waits for pending sends.
package auth
