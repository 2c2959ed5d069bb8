package test

import (
	"fmt"

	"github.com/unbreakk1/Questify/internal/boss"
	"github.com/unbreakk1/Questify/internal/testclient"
)

// =============================================================================
// Group 2: Boss combat
// =============================================================================

// newFighter registers a user and starts a fight with the first offered boss.
func newFighter(testName, base, baseURL string) (*testclient.TestClient, boss.Definition, error) {
	client, err := testclient.NewTestClient(uniqueName(base), baseURL)
	if err != nil {
		return nil, boss.Definition{}, err
	}
	logAction(testName, "Fetching boss selection")
	candidates, err := client.Selection()
	if err != nil {
		return nil, boss.Definition{}, err
	}
	if len(candidates) == 0 {
		return nil, boss.Definition{}, fmt.Errorf("no bosses offered at level 1")
	}
	def := candidates[0]
	logAction(testName, "Selecting "+def.ID)
	if _, err := client.SelectBoss(def.ID); err != nil {
		return nil, boss.Definition{}, err
	}
	return client, def, nil
}

// TestBossSelection tests that a new user is offered bosses and can pick one.
func TestBossSelection(baseURL string) TestResult {
	const testName = "Boss Selection"

	client, def, err := newFighter(testName, "Picker", baseURL)
	if err != nil {
		return fail(testName, "Setup failed: %v", err)
	}

	active, err := client.ActiveBoss()
	if err != nil {
		return fail(testName, "GET /api/boss/active failed: %v", err)
	}
	ok := active.ID == def.ID && active.CurrentHealth == def.MaxHealth
	logResult(testName, ok, fmt.Sprintf("Active boss %s at %d/%d", active.ID, active.CurrentHealth, active.MaxHealth))
	if !ok {
		return fail(testName, "Active boss %+v does not match selection %s", active, def.ID)
	}

	logAction(testName, "Selecting again while a fight is active")
	_, err = client.SelectBoss(def.ID)
	if code := testclient.ErrorCode(err); code != "INVALID_SELECTION" {
		return fail(testName, "Expected INVALID_SELECTION for a second selection, got %v", err)
	}
	return pass(testName, "Selected "+def.Name+" at full health")
}

// TestSelectUnofferedBoss tests that ids outside the offer are refused.
func TestSelectUnofferedBoss(baseURL string) TestResult {
	const testName = "Select Unoffered Boss"

	client, err := testclient.NewTestClient(uniqueName("Cheat"), baseURL)
	if err != nil {
		return fail(testName, "Registration failed: %v", err)
	}
	if _, err := client.Selection(); err != nil {
		return fail(testName, "Selection failed: %v", err)
	}
	_, err = client.SelectBoss("no-such-boss")
	if code := testclient.ErrorCode(err); code != "INVALID_SELECTION" {
		return fail(testName, "Expected INVALID_SELECTION, got %v", err)
	}
	return pass(testName, "Unoffered boss ids are refused")
}

// TestAttackWithoutBoss tests attacking with an empty boss slot.
func TestAttackWithoutBoss(baseURL string) TestResult {
	const testName = "Attack Without Boss"

	client, err := testclient.NewTestClient(uniqueName("Idle"), baseURL)
	if err != nil {
		return fail(testName, "Registration failed: %v", err)
	}
	_, err = client.Attack(10)
	if code := testclient.ErrorCode(err); code != "NO_ACTIVE_BOSS" {
		return fail(testName, "Expected NO_ACTIVE_BOSS, got %v", err)
	}
	return pass(testName, "Attacks need an active boss")
}

// TestNegativeDamage tests that damage below zero is rejected.
func TestNegativeDamage(baseURL string) TestResult {
	const testName = "Negative Damage"

	client, _, err := newFighter(testName, "Healer", baseURL)
	if err != nil {
		return fail(testName, "Setup failed: %v", err)
	}
	_, err = client.Attack(-5)
	if code := testclient.ErrorCode(err); code != "INVALID_DAMAGE" {
		return fail(testName, "Expected INVALID_DAMAGE, got %v", err)
	}
	return pass(testName, "Negative damage is rejected")
}

// TestPartialAttack tests that a non-lethal hit only lowers health.
func TestPartialAttack(baseURL string) TestResult {
	const testName = "Partial Attack"

	client, def, err := newFighter(testName, "Poker", baseURL)
	if err != nil {
		return fail(testName, "Setup failed: %v", err)
	}
	if def.MaxHealth < 2 {
		return pass(testName, "Skipped: first boss has under 2 health")
	}

	resp, err := client.Attack(1)
	if err != nil {
		return fail(testName, "Attack failed: %v", err)
	}
	ok := resp.CurrentHealth == def.MaxHealth-1 && !resp.Defeated && resp.Damage == 1
	logResult(testName, ok, fmt.Sprintf("Health now %d/%d", resp.CurrentHealth, resp.MaxHealth))
	if !ok {
		return fail(testName, "Unexpected attack result: %+v", resp)
	}

	profile, err := client.Me()
	if err != nil {
		return fail(testName, "Profile failed: %v", err)
	}
	if profile.Gold != 0 {
		return fail(testName, "A non-lethal hit paid out %d gold", profile.Gold)
	}
	return pass(testName, "Non-lethal hits lower health only")
}

// TestBossDefeat tests that the defeating hit pays the boss rewards and
// clears the slot.
func TestBossDefeat(baseURL string) TestResult {
	const testName = "Boss Defeat"

	client, def, err := newFighter(testName, "Slayer", baseURL)
	if err != nil {
		return fail(testName, "Setup failed: %v", err)
	}

	logAction(testName, fmt.Sprintf("Hitting %s for %d", def.ID, def.MaxHealth))
	resp, err := client.Attack(def.MaxHealth)
	if err != nil {
		return fail(testName, "Attack failed: %v", err)
	}
	if !resp.Defeated || resp.CurrentHealth != 0 || resp.Rewards == nil {
		return fail(testName, "Boss not defeated: %+v", resp)
	}
	if resp.Rewards.Gold != def.Rewards.Gold || resp.Rewards.XP != def.Rewards.XP {
		return fail(testName, "Rewards %+v do not match boss table %+v", resp.Rewards, def.Rewards)
	}
	logResult(testName, true, fmt.Sprintf("Earned %d gold, %d xp", resp.Rewards.Gold, resp.Rewards.XP))

	profile, err := client.Me()
	if err != nil {
		return fail(testName, "Profile failed: %v", err)
	}
	if profile.Gold != def.Rewards.Gold {
		return fail(testName, "Profile gold %d, want %d", profile.Gold, def.Rewards.Gold)
	}
	if def.Rewards.Badge != "" && !contains(profile.Badges, def.Rewards.Badge) {
		return fail(testName, "Badge %q missing from %v", def.Rewards.Badge, profile.Badges)
	}

	_, err = client.ActiveBoss()
	if code := testclient.ErrorCode(err); code != "NO_ACTIVE_BOSS" {
		return fail(testName, "Expected an empty slot after defeat, got %v", err)
	}
	return pass(testName, "Defeated "+def.Name+" and collected rewards")
}

// TestDefeatHistory tests that defeats are recorded newest first.
func TestDefeatHistory(baseURL string) TestResult {
	const testName = "Defeat History"

	client, def, err := newFighter(testName, "Chron", baseURL)
	if err != nil {
		return fail(testName, "Setup failed: %v", err)
	}
	if _, err := client.Attack(def.MaxHealth); err != nil {
		return fail(testName, "Attack failed: %v", err)
	}

	records, err := client.DefeatHistory(5)
	if err != nil {
		return fail(testName, "History failed: %v", err)
	}
	if len(records) != 1 || records[0].BossID != def.ID || records[0].Gold != def.Rewards.Gold {
		return fail(testName, "Unexpected history: %+v", records)
	}
	return pass(testName, "Defeat recorded in history")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
