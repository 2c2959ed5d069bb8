package boss

// Instance is a user's fight against one boss.
type Instance struct {
	Definition    Definition
	CurrentHealth int
	Defeated      bool
}

// NewInstance starts a fresh fight at full health.
func NewInstance(def Definition) *Instance {
	return &Instance{
		Definition:    def,
		CurrentHealth: def.MaxHealth,
	}
}

// ApplyDamage lowers health, clamping at zero. It returns true when this call
// defeated the boss. Damage against a defeated boss is a no-op.
func (i *Instance) ApplyDamage(damage int) bool {
	if i.Defeated {
		return false
	}
	if damage < 0 {
		damage = 0
	}
	i.CurrentHealth -= damage
	if i.CurrentHealth <= 0 {
		i.CurrentHealth = 0
		i.Defeated = true
		return true
	}
	return false
}
