package entity

// Rule is a rule script as the provider stores it.
type Rule struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
	Order   *int   `json:"order,omitempty"`
	Script  string `json:"script"`
	Stage   string `json:"stage,omitempty"`
}

// DesiredRule is a declared rule; its name is the map key it is declared under.
// A nil Order means the position is left to the provider.
type DesiredRule struct {
	Enabled bool
	Order   *int
	Script  string
}

// ToRule builds the create/update body for name.
func (d DesiredRule) ToRule(name string) Rule {
	return Rule{Name: name, Enabled: d.Enabled, Order: d.Order, Script: d.Script}
}

// RulePatch is the partial update body; ID and Stage cannot be patched.
type RulePatch struct {
	Name    string `json:"name,omitempty"`
	Enabled bool   `json:"enabled"`
	Order   *int   `json:"order,omitempty"`
	Script  string `json:"script"`
}
