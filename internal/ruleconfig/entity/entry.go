package entity

// Entry is one rule-config key. Values are write-only on the provider side, so
// listings only return keys.
type Entry struct {
	Key   string `json:"key"`
	Value any    `json:"value,omitempty"`
}
