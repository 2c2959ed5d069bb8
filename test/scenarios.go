// Package test holds end-to-end scenarios that exercise a running Questify
// server through testclient. cmd/testrunner runs them against a live server.
package test

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// uniqueCounter provides unique IDs for test users within a single run
var uniqueCounter uint64

// runTag keeps names from different runs against the same database apart.
var runTag = counterToLetters(uint64(time.Now().UnixNano()/int64(time.Millisecond)) % (26 * 26 * 26 * 26))

// uniqueName appends the run tag and a letter counter to base. Keep base
// short: usernames are capped at 20 characters.
func uniqueName(base string) string {
	counter := atomic.AddUint64(&uniqueCounter, 1)
	return base + runTag + counterToLetters(counter)
}

// counterToLetters converts a number to a letter sequence (1=a, 2=b, ..., 26=z, 27=aa, 28=ab, ...)
func counterToLetters(n uint64) string {
	if n == 0 {
		return "a"
	}
	result := ""
	for n > 0 {
		n-- // Make it 0-indexed
		result = string(rune('a'+(n%26))) + result
		n /= 26
	}
	return result
}

// Verbose controls whether detailed logging is shown during tests
var Verbose = false

// TestResult represents the result of a test
type TestResult struct {
	Name    string
	Passed  bool
	Message string
}

func pass(name, msg string) TestResult {
	return TestResult{Name: name, Passed: true, Message: msg}
}

func fail(name, format string, args ...any) TestResult {
	return TestResult{Name: name, Passed: false, Message: fmt.Sprintf(format, args...)}
}

// logAction logs a test action when verbose mode is enabled
func logAction(testName, action string) {
	if Verbose {
		fmt.Printf("  [%s] %s\n", testName, action)
	}
}

// logResult logs an expected vs actual result when verbose mode is enabled
func logResult(testName string, success bool, detail string) {
	if Verbose {
		status := "OK"
		if !success {
			status = "FAIL"
		}
		fmt.Printf("  [%s] %s: %s\n", testName, status, detail)
	}
}

type testEntry struct {
	Name string
	Func func(string) TestResult
}

func getAllTests() []testEntry {
	return []testEntry{
		// Group 1: Accounts
		{"Register And Login", TestRegisterAndLogin},
		{"Duplicate Username", TestDuplicateUsername},
		{"Bad Credentials", TestBadCredentials},
		{"Requires Token", TestRequiresToken},

		// Group 2: Boss combat
		{"Boss Selection", TestBossSelection},
		{"Select Unoffered Boss", TestSelectUnofferedBoss},
		{"Attack Without Boss", TestAttackWithoutBoss},
		{"Negative Damage", TestNegativeDamage},
		{"Partial Attack", TestPartialAttack},
		{"Boss Defeat", TestBossDefeat},
		{"Defeat History", TestDefeatHistory},

		// Group 3: Tasks and habits
		{"Task Completion", TestTaskCompletion},
		{"Completion Attacks Boss", TestCompletionAttacksBoss},
		{"Habit Streak", TestHabitStreak},

		// Group 4: Push
		{"Stats Push", TestStatsPush},
		{"Push Isolation", TestPushIsolation},
	}
}

// RunAllTests runs every scenario against the server at baseURL.
func RunAllTests(baseURL string) []TestResult {
	tests := getAllTests()
	results := make([]TestResult, 0, len(tests))
	for _, t := range tests {
		results = append(results, t.Func(baseURL))
	}
	return results
}

// GetTestNames returns the names of all available tests
func GetTestNames() []string {
	tests := getAllTests()
	names := make([]string, len(tests))
	for i, t := range tests {
		names[i] = t.Name
	}
	return names
}

// RunFilteredTests runs only tests whose names contain the filter string (case-insensitive)
func RunFilteredTests(baseURL string, filter string) []TestResult {
	results := make([]TestResult, 0)
	filterLower := strings.ToLower(filter)

	for _, t := range getAllTests() {
		if strings.Contains(strings.ToLower(t.Name), filterLower) {
			results = append(results, t.Func(baseURL))
		}
	}

	return results
}

// PrintResults prints all test results in a formatted way
func PrintResults(results []TestResult) {
	passed := 0
	failed := 0

	fmt.Println("============================================================")
	fmt.Println("Integration Test Results")
	fmt.Println("============================================================")
	fmt.Println()

	for _, r := range results {
		status := "PASS"
		if !r.Passed {
			status = "FAIL"
			failed++
		} else {
			passed++
		}
		fmt.Printf("[%s] %s: %s\n", status, r.Name, r.Message)
	}

	fmt.Println()
	fmt.Println("------------------------------------------------------------")
	fmt.Printf("Total: %d | Passed: %d | Failed: %d\n", len(results), passed, failed)
	fmt.Println("------------------------------------------------------------")
}
