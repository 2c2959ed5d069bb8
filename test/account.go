package test

import (
	"net/http"
	"strings"

	"github.com/unbreakk1/Questify/internal/testclient"
)

// =============================================================================
// Group 1: Accounts
// =============================================================================

// TestRegisterAndLogin registers, logs in again with the same credentials
// and reads the profile.
func TestRegisterAndLogin(baseURL string) TestResult {
	const testName = "Register And Login"

	name := uniqueName("Hero")
	logAction(testName, "Registering "+name)
	if _, err := testclient.NewTestClient(name, baseURL); err != nil {
		return fail(testName, "Registration failed: %v", err)
	}

	logAction(testName, "Logging in with a different case")
	client, err := testclient.NewTestClientWithLogin(testclient.Credentials{
		Username: strings.ToLower(name),
		Password: testclient.DefaultPassword,
	}, baseURL)
	if err != nil {
		return fail(testName, "Login failed: %v", err)
	}

	profile, err := client.Me()
	if err != nil {
		return fail(testName, "GET /api/users/me failed: %v", err)
	}
	ok := profile.Username == name && profile.Level == 1 && profile.Gold == 0
	logResult(testName, ok, "Fresh profile starts at level 1 with no gold")
	if !ok {
		return fail(testName, "Unexpected fresh profile: %+v", profile)
	}
	return pass(testName, "Register, login and profile work")
}

// TestDuplicateUsername tests that names are unique regardless of case.
func TestDuplicateUsername(baseURL string) TestResult {
	const testName = "Duplicate Username"

	name := uniqueName("Dupe")
	if _, err := testclient.NewTestClient(name, baseURL); err != nil {
		return fail(testName, "Registration failed: %v", err)
	}

	logAction(testName, "Registering the same name in upper case")
	_, err := testclient.NewTestClient(strings.ToUpper(name), baseURL)
	code := testclient.ErrorCode(err)
	logResult(testName, code == "USERNAME_TAKEN", "Got "+code)
	if code != "USERNAME_TAKEN" {
		return fail(testName, "Expected USERNAME_TAKEN, got %v", err)
	}
	return pass(testName, "Duplicate names are rejected")
}

// TestBadCredentials tests that a wrong password is refused.
func TestBadCredentials(baseURL string) TestResult {
	const testName = "Bad Credentials"

	name := uniqueName("Lock")
	if _, err := testclient.NewTestClient(name, baseURL); err != nil {
		return fail(testName, "Registration failed: %v", err)
	}

	logAction(testName, "Logging in with the wrong password")
	_, err := testclient.NewTestClientWithLogin(testclient.Credentials{Username: name, Password: "WrongPass999"}, baseURL)
	if code := testclient.ErrorCode(err); code != "INVALID_CREDENTIALS" {
		return fail(testName, "Expected INVALID_CREDENTIALS, got %v", err)
	}
	return pass(testName, "Wrong password is refused")
}

// TestRequiresToken tests that the API refuses missing and forged tokens.
func TestRequiresToken(baseURL string) TestResult {
	const testName = "Requires Token"

	client := testclient.NewTestClientRaw(baseURL)
	err := client.Do(http.MethodGet, "/api/users/me", nil, nil)
	if code := testclient.ErrorCode(err); code != "UNAUTHENTICATED" {
		return fail(testName, "Expected UNAUTHENTICATED without a token, got %v", err)
	}

	client.SetToken("not.a.jwt")
	err = client.Do(http.MethodGet, "/api/boss/active", nil, nil)
	if code := testclient.ErrorCode(err); code != "UNAUTHENTICATED" {
		return fail(testName, "Expected UNAUTHENTICATED with a forged token, got %v", err)
	}
	return pass(testName, "Protected routes require a valid token")
}
