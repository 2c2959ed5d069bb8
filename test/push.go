package test

import (
	"strings"
	"time"

	"github.com/unbreakk1/Questify/internal/engine"
	"github.com/unbreakk1/Questify/internal/testclient"
)

// =============================================================================
// Group 4: Push
// =============================================================================

// subscribeDelay gives the server time to register a new subscriber before
// the scenario triggers an update.
const subscribeDelay = 300 * time.Millisecond

// TestStatsPush tests that a gold change reaches the user's push channel.
func TestStatsPush(baseURL string) TestResult {
	const testName = "Stats Push"

	client, err := testclient.NewTestClient(uniqueName("Listen"), baseURL)
	if err != nil {
		return fail(testName, "Registration failed: %v", err)
	}
	if err := client.Subscribe(); err != nil {
		return fail(testName, "Subscribe failed: %v", err)
	}
	defer client.Close()
	time.Sleep(subscribeDelay)

	task, err := client.CreateTask("Water plants", "")
	if err != nil {
		return fail(testName, "Create task failed: %v", err)
	}
	result, err := client.CompleteTask(task.ID)
	if err != nil {
		return fail(testName, "Complete failed: %v", err)
	}

	logAction(testName, "Waiting for stats update")
	update, ok := client.WaitForUpdate(func(u engine.UserStatsUpdate) bool {
		return u.Gold == result.Reward.TotalGold
	}, 2*time.Second)
	logResult(testName, ok, "Received update")
	if !ok {
		return fail(testName, "No update with gold %d, got %+v", result.Reward.TotalGold, client.GetUpdates())
	}
	if !strings.EqualFold(update.UserID, client.Name) || update.Level != result.Reward.Level {
		return fail(testName, "Unexpected update %+v", update)
	}
	return pass(testName, "Gold change pushed to subscriber")
}

// TestPushIsolation tests that users only see their own updates.
func TestPushIsolation(baseURL string) TestResult {
	const testName = "Push Isolation"

	watcher, err := testclient.NewTestClient(uniqueName("Watch"), baseURL)
	if err != nil {
		return fail(testName, "Registration failed: %v", err)
	}
	earner, err := testclient.NewTestClient(uniqueName("Earn"), baseURL)
	if err != nil {
		return fail(testName, "Registration failed: %v", err)
	}
	if err := watcher.Subscribe(); err != nil {
		return fail(testName, "Subscribe failed: %v", err)
	}
	defer watcher.Close()
	if err := earner.Subscribe(); err != nil {
		return fail(testName, "Subscribe failed: %v", err)
	}
	defer earner.Close()
	time.Sleep(subscribeDelay)

	task, err := earner.CreateTask("Pay bills", "")
	if err != nil {
		return fail(testName, "Create task failed: %v", err)
	}
	if _, err := earner.CompleteTask(task.ID); err != nil {
		return fail(testName, "Complete failed: %v", err)
	}

	if _, ok := earner.WaitForUpdate(func(engine.UserStatsUpdate) bool { return true }, 2*time.Second); !ok {
		return fail(testName, "Earner received no update")
	}
	// The earner's update has arrived, so anything for the watcher would too.
	time.Sleep(100 * time.Millisecond)
	if updates := watcher.GetUpdates(); len(updates) != 0 {
		return fail(testName, "Watcher received another user's updates: %+v", updates)
	}
	return pass(testName, "Updates go only to their owner")
}
