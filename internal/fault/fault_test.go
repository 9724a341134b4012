// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package fault_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turnstile-auth/turnstile/internal/fault"
	"github.com/turnstile-auth/turnstile/pkg/errutil"
)

func TestKindStatus(t *testing.T) {
	tests := []struct {
		kind fault.Kind
		want int
	}{
		{fault.KindBadRequest, http.StatusBadRequest},
		{fault.KindUnauthorized, http.StatusUnauthorized},
		{fault.KindForbidden, http.StatusForbidden},
		{fault.KindNotFound, http.StatusNotFound},
		{fault.KindTooManyRequests, http.StatusTooManyRequests},
		{fault.KindInternal, http.StatusInternalServerError},
		{fault.Kind("bogus"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.Status())
		})
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind fault.Kind
	}{
		{"bad request", fault.BadRequest("X_BAD", "bad"), fault.KindBadRequest},
		{"unauthorized", fault.Unauthorized("X_UNAUTH", "no"), fault.KindUnauthorized},
		{"forbidden", fault.Forbidden("X_FORBID", "no"), fault.KindForbidden},
		{"not found", fault.NotFound("X_MISSING", "gone"), fault.KindNotFound},
		{"too many", fault.TooManyRequests("X_SLOW", "later"), fault.KindTooManyRequests},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, fault.KindOf(tt.err))
			assert.True(t, fault.Is(tt.err, tt.kind))
			errutil.AssertErrorContext(t, tt.err, "kind", string(tt.kind))
		})
	}
}

func TestInvalid_KeepsAllMessages(t *testing.T) {
	err := fault.Invalid("VALIDATION_FAILED", []string{"email must be a valid email", "name is required"})

	assert.Equal(t, fault.KindBadRequest, fault.KindOf(err))
	assert.Equal(t, []string{"email must be a valid email", "name is required"}, fault.Messages(err, "user"))
	errutil.AssertErrorCode(t, err, "VALIDATION_FAILED")
}

func TestWrap_PassesTypedErrorsThrough(t *testing.T) {
	typed := fault.NotFound("TOKEN_NOT_FOUND", "Verification token not found")
	wrapped := oops.With("operation", "verify").Wrap(typed)

	got := fault.Wrap(wrapped, "user")

	assert.Equal(t, wrapped, got)
	assert.Equal(t, fault.KindNotFound, fault.KindOf(got))
	assert.Equal(t, []string{"Verification token not found"}, fault.Messages(got, "user"))
}

func TestWrap_UnclassifiedBecomesInternal(t *testing.T) {
	cause := errors.New("connection reset by peer")

	err := fault.Wrap(cause, "auth")

	require.Error(t, err)
	assert.Equal(t, fault.KindInternal, fault.KindOf(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, []string{"Something went wrong in the auth service"}, fault.Messages(err, "auth"))
	assert.Contains(t, err.Error(), "connection reset by peer")
}

func TestWrap_ContextErrorsAreInternal(t *testing.T) {
	err := fault.Wrap(context.DeadlineExceeded, "user")

	assert.True(t, fault.Is(err, fault.KindInternal))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWrap_Nil(t *testing.T) {
	assert.NoError(t, fault.Wrap(nil, "auth"))
}

func TestMessages_PlainError(t *testing.T) {
	assert.Equal(t, []string{"Something went wrong in the user service"},
		fault.Messages(errors.New("boom"), "user"))
}

func TestIs_Nil(t *testing.T) {
	assert.False(t, fault.Is(nil, fault.KindInternal))
}

func TestMessage_Payload(t *testing.T) {
	assert.Equal(t, []string{"email must be an email"},
		fault.Message(fault.Invalid("VALIDATION_FAILED", []string{"email must be an email"}), "auth"))
	assert.Equal(t, "Invalid token", fault.Message(fault.BadRequest("TOKEN_INVALID", "Invalid token"), "auth"))
	assert.Equal(t, "Something went wrong in the auth service", fault.Message(errors.New("boom"), "auth"))
}
