// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package auth

// HashSessionSeed exposes session id derivation for tests.
var HashSessionSeed = hashSessionSeed
