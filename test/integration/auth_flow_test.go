// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

//go:build integration

package integration

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/turnstile-auth/turnstile/internal/httpapi"
)

// uniqueEmail keeps specs independent on the shared database.
func uniqueEmail(prefix string) string {
	return fmt.Sprintf("%s-%s@example.com", prefix, ulid.Make().String())
}

func uniqueIP() string {
	id := ulid.Make()
	return fmt.Sprintf("10.%d.%d.%d", id[13], id[14], id[15])
}

var _ = Describe("Credential account lifecycle", func() {
	var (
		browser *client
		email   string
	)

	BeforeEach(func() {
		browser = &client{ip: uniqueIP()}
		email = uniqueEmail("ada")

		resp := browser.call(http.MethodPost, "/api/auth/signup", signupBody(email, "Ada"))
		Expect(resp.Status).To(Equal(http.StatusCreated), fmt.Sprint(resp.Body))
		Expect(browser.session).To(BeEmpty(), "signup does not sign in")

		resp = browser.call(http.MethodPost, "/api/auth/signin", map[string]string{"email": email, "password": password})
		Expect(resp.Status).To(Equal(http.StatusOK), fmt.Sprint(resp.Body))
		Expect(browser.session).To(HaveLen(64))
	})

	It("gates user routes on email verification", func() {
		resp := browser.call(http.MethodGet, "/api/users/profile", nil)
		Expect(resp.Status).To(Equal(http.StatusForbidden))
		Expect(resp.Body["message"]).To(Equal(httpapi.MsgVerificationRequired))

		token := env.mail.latestToken(email, 1)
		resp = browser.call(http.MethodPost, "/api/users/verify-email", map[string]string{"token": token})
		Expect(resp.Status).To(Equal(http.StatusOK), fmt.Sprint(resp.Body))
		Expect(resp.Body["message"]).To(Equal(httpapi.MsgEmailVerified))

		resp = browser.call(http.MethodGet, "/api/users/profile", nil)
		Expect(resp.Status).To(Equal(http.StatusOK))
		Expect(resp.data()["email"]).To(Equal(email))
		Expect(resp.data()["verified_at"]).NotTo(BeNil())
	})

	It("rejects a verification token the second time", func() {
		token := env.mail.latestToken(email, 1)
		Expect(browser.call(http.MethodPost, "/api/users/verify-email", map[string]string{"token": token}).Status).
			To(Equal(http.StatusOK))

		resp := browser.call(http.MethodPost, "/api/users/verify-email", map[string]string{"token": token})
		Expect(resp.Status).To(Equal(http.StatusBadRequest))
	})

	It("issues a fresh token on resend", func() {
		first := env.mail.latestToken(email, 1)
		resp := browser.call(http.MethodPost, "/api/users/resend-email-verification", nil)
		Expect(resp.Status).To(Equal(http.StatusOK), fmt.Sprint(resp.Body))

		second := env.mail.latestToken(email, 2)
		Expect(second).NotTo(Equal(first))
		Expect(browser.call(http.MethodPost, "/api/users/verify-email", map[string]string{"token": second}).Status).
			To(Equal(http.StatusOK))
	})

	It("updates the profile and lists the user's sessions", func() {
		token := env.mail.latestToken(email, 1)
		Expect(browser.call(http.MethodPost, "/api/users/verify-email", map[string]string{"token": token}).Status).
			To(Equal(http.StatusOK))

		resp := browser.call(http.MethodPatch, "/api/users/profile", map[string]string{"name": "Ada Lovelace"})
		Expect(resp.Status).To(Equal(http.StatusOK))
		Expect(resp.data()["name"]).To(Equal("Ada Lovelace"))

		resp = browser.call(http.MethodGet, "/api/users/sessions", nil)
		Expect(resp.Status).To(Equal(http.StatusOK))
		sessions, ok := resp.Body["data"].([]any)
		Expect(ok).To(BeTrue())
		Expect(sessions).NotTo(BeEmpty())
		Expect(sessions[0]).NotTo(HaveKey("hashed_session_id"))
	})

	It("reports a valid session and ends it on logout", func() {
		resp := browser.call(http.MethodGet, "/api/users/check-session", nil)
		Expect(resp.Status).To(Equal(http.StatusOK))
		Expect(resp.data()["rotated"]).To(BeFalse())

		stale := browser.session
		resp = browser.call(http.MethodPost, "/api/auth/logout", nil)
		Expect(resp.Status).To(Equal(http.StatusOK))
		Expect(browser.session).To(BeEmpty())

		browser.session = stale
		resp = browser.call(http.MethodGet, "/api/users/check-session", nil)
		Expect(resp.Status).To(Equal(http.StatusUnauthorized))
	})

	It("requires signing in again after a password reset", func() {
		const newPassword = "Pw2!bbbb"
		stale := browser.session

		resp := browser.call(http.MethodPatch, "/api/users/reset-password", map[string]string{
			"old_password":       password,
			"password":           newPassword,
			"reconfirm_password": newPassword,
		})
		Expect(resp.Status).To(Equal(http.StatusOK), fmt.Sprint(resp.Body))
		Expect(browser.session).To(BeEmpty())

		browser.session = stale
		Expect(browser.call(http.MethodGet, "/api/users/check-session", nil).Status).To(Equal(http.StatusUnauthorized))

		resp = browser.call(http.MethodPost, "/api/auth/signin", map[string]string{"email": email, "password": password})
		Expect(resp.Status).To(Equal(http.StatusUnauthorized))

		resp = browser.call(http.MethodPost, "/api/auth/signin", map[string]string{"email": email, "password": newPassword})
		Expect(resp.Status).To(Equal(http.StatusOK))
		Expect(resp.data()["user"]).To(HaveKeyWithValue("login_counter", BeNumerically("==", 2)))
	})
})

var _ = Describe("Signup", func() {
	It("rejects an email that differs only in case", func() {
		browser := &client{ip: uniqueIP()}
		email := uniqueEmail("grace")
		Expect(browser.call(http.MethodPost, "/api/auth/signup", signupBody(email, "Grace")).Status).
			To(Equal(http.StatusCreated))

		resp := browser.call(http.MethodPost, "/api/auth/signup", signupBody(strings.ToUpper(email), "Grace"))
		Expect(resp.Status).To(Equal(http.StatusBadRequest))
	})
})

var _ = Describe("Rate limiting", func() {
	It("rejects auth attempts past the budget from one address", func() {
		browser := &client{ip: uniqueIP()}
		body := map[string]string{"email": uniqueEmail("nobody"), "password": password}

		for range 5 {
			Expect(browser.call(http.MethodPost, "/api/auth/signin", body).Status).To(Equal(http.StatusUnauthorized))
		}
		resp := browser.call(http.MethodPost, "/api/auth/signin", body)
		Expect(resp.Status).To(Equal(http.StatusTooManyRequests))
		Expect(resp.Body["message"]).To(Equal("Please try again 1 minutes later"))

		other := &client{ip: uniqueIP()}
		Expect(other.call(http.MethodPost, "/api/auth/signin", body).Status).To(Equal(http.StatusUnauthorized))
	})
})
