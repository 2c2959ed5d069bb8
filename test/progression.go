package test

import (
	"fmt"

	"github.com/unbreakk1/Questify/internal/testclient"
)

// =============================================================================
// Group 3: Tasks and habits
// =============================================================================

// TestTaskCompletion tests that completing a task pays out once per day.
func TestTaskCompletion(baseURL string) TestResult {
	const testName = "Task Completion"

	client, err := testclient.NewTestClient(uniqueName("Doer"), baseURL)
	if err != nil {
		return fail(testName, "Registration failed: %v", err)
	}

	task, err := client.CreateTask("Write weekly report", "")
	if err != nil {
		return fail(testName, "Create task failed: %v", err)
	}
	logAction(testName, "Completing task "+task.ID)
	result, err := client.CompleteTask(task.ID)
	if err != nil {
		return fail(testName, "Complete failed: %v", err)
	}
	if result.Reward == nil || result.Task == nil || !result.Task.Completed {
		return fail(testName, "Unexpected completion: %+v", result)
	}

	profile, err := client.Me()
	if err != nil {
		return fail(testName, "Profile failed: %v", err)
	}
	ok := profile.Gold == result.Reward.TotalGold && profile.Experience == result.Reward.Experience
	logResult(testName, ok, fmt.Sprintf("Profile gold %d, reward total %d", profile.Gold, result.Reward.TotalGold))
	if !ok {
		return fail(testName, "Profile %+v disagrees with reward %+v", profile, result.Reward)
	}

	logAction(testName, "Completing the same task again")
	_, err = client.CompleteTask(task.ID)
	if code := testclient.ErrorCode(err); code != "ALREADY_COMPLETED" {
		return fail(testName, "Expected ALREADY_COMPLETED, got %v", err)
	}

	_, err = client.CompleteTask("00000000-0000-0000-0000-000000000000")
	if code := testclient.ErrorCode(err); code != "TASK_NOT_FOUND" {
		return fail(testName, "Expected TASK_NOT_FOUND, got %v", err)
	}
	return pass(testName, fmt.Sprintf("Task paid %d gold once", result.Reward.Gold))
}

// TestCompletionAttacksBoss tests that a completion strikes the active boss
// when the server is configured to do so.
func TestCompletionAttacksBoss(baseURL string) TestResult {
	const testName = "Completion Attacks Boss"

	client, def, err := newFighter(testName, "Striker", baseURL)
	if err != nil {
		return fail(testName, "Setup failed: %v", err)
	}
	task, err := client.CreateTask("Clear inbox", "")
	if err != nil {
		return fail(testName, "Create task failed: %v", err)
	}
	result, err := client.CompleteTask(task.ID)
	if err != nil {
		return fail(testName, "Complete failed: %v", err)
	}
	if result.Boss == nil {
		return pass(testName, "Skipped: completion attacks are disabled on this server")
	}

	if result.Boss.Boss.Defeated {
		return pass(testName, "Completion defeated "+def.Name)
	}
	active, err := client.ActiveBoss()
	if err != nil {
		return fail(testName, "Active boss failed: %v", err)
	}
	ok := active.CurrentHealth == result.Boss.Boss.CurrentHealth && active.CurrentHealth < def.MaxHealth
	logResult(testName, ok, fmt.Sprintf("Boss at %d/%d", active.CurrentHealth, def.MaxHealth))
	if !ok {
		return fail(testName, "Boss health %d after completion hit of %d", active.CurrentHealth, result.Boss.Damage)
	}
	return pass(testName, fmt.Sprintf("Completion dealt %d damage", result.Boss.Damage))
}

// TestHabitStreak tests completing, re-completing and resetting a habit.
func TestHabitStreak(baseURL string) TestResult {
	const testName = "Habit Streak"

	client, err := testclient.NewTestClient(uniqueName("Streak"), baseURL)
	if err != nil {
		return fail(testName, "Registration failed: %v", err)
	}
	habit, err := client.CreateHabit("Stretch", "daily", "easy")
	if err != nil {
		return fail(testName, "Create habit failed: %v", err)
	}
	if habit.Frequency != "DAILY" || habit.Difficulty != "EASY" {
		return fail(testName, "Habit not normalised: %+v", habit)
	}

	result, err := client.CompleteHabit(habit.ID)
	if err != nil {
		return fail(testName, "Complete failed: %v", err)
	}
	if result.Habit == nil || result.Habit.Streak != 1 {
		return fail(testName, "Expected streak 1, got %+v", result.Habit)
	}

	_, err = client.CompleteHabit(habit.ID)
	if code := testclient.ErrorCode(err); code != "ALREADY_COMPLETED" {
		return fail(testName, "Expected ALREADY_COMPLETED, got %v", err)
	}

	logAction(testName, "Resetting habit")
	reset, err := client.ResetHabit(habit.ID)
	if err != nil {
		return fail(testName, "Reset failed: %v", err)
	}
	if reset.Streak != 0 || reset.Completed {
		return fail(testName, "Reset left %+v", reset)
	}
	if _, err := client.CompleteHabit(habit.ID); err != nil {
		return fail(testName, "Completing after reset failed: %v", err)
	}
	return pass(testName, "Streak counts, blocks repeats and resets")
}
