// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package errutil_test

import (
	"errors"
	"testing"

	"github.com/samber/oops"

	"github.com/turnstile-auth/turnstile/pkg/errutil"
)

func TestAssertErrorCode_DeepestCodeWins(t *testing.T) {
	inner := oops.Code("USER_NOT_FOUND").Wrap(errors.New("no rows"))
	err := oops.Code("AUTH_SIGNIN_FAILED").Wrap(inner)
	errutil.AssertErrorCode(t, err, "USER_NOT_FOUND")
}

func TestAssertErrorContext_MergesChain(t *testing.T) {
	inner := oops.With("user_id", "01J").Errorf("update failed")
	err := oops.With("operation", "record login").Wrap(inner)
	errutil.AssertErrorContext(t, err, "user_id", "01J")
	errutil.AssertErrorContext(t, err, "operation", "record login")
}
