package leveling

// XPPerLevel scales the experience threshold: a user at level L needs
// XPPerLevel*L experience to advance.
const XPPerLevel = 100

// XPToNextLevel returns the experience needed at currentLevel to advance.
func XPToNextLevel(currentLevel int) int {
	if currentLevel < 1 {
		currentLevel = 1
	}
	return XPPerLevel * currentLevel
}

// LevelUpInfo describes the outcome of crediting experience.
type LevelUpInfo struct {
	OldLevel   int
	NewLevel   int
	Experience int // Remaining experience toward NewLevel+1
}

// LevelsGained returns how many levels were crossed.
func (l LevelUpInfo) LevelsGained() int {
	return l.NewLevel - l.OldLevel
}

// LeveledUp reports whether at least one level was gained.
func (l LevelUpInfo) LeveledUp() bool {
	return l.NewLevel > l.OldLevel
}

// Apply adds gained experience to (level, experience) and cascades level-ups
// until the remainder is below the next threshold. A single grant may cross
// several levels.
func Apply(level, experience, gained int) LevelUpInfo {
	if level < 1 {
		level = 1
	}
	info := LevelUpInfo{OldLevel: level}
	xp := experience + gained
	for xp >= XPToNextLevel(level) {
		xp -= XPToNextLevel(level)
		level++
	}
	info.NewLevel = level
	info.Experience = xp
	return info
}
