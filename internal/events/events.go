package events

import "github.com/alfredjeanlab/storescan/internal/model"

// CodeCreated is published when a scanned code is durably written.
type CodeCreated struct {
	Code *model.ScannedCode `json:"code"`
}

// CodeDeleted is published when a scanned code is removed.
type CodeDeleted struct {
	CodeID string `json:"code_id"`
	Scope  string `json:"store_scope"`
	Origin string `json:"origin,omitempty"`
}

// ScopeCleared is published when every code of a scope is removed at once.
type ScopeCleared struct {
	Scope   string `json:"store_scope"`
	Deleted int64  `json:"deleted"`
	Origin  string `json:"origin,omitempty"`
}

func (e CodeCreated) EventScope() string {
	if e.Code == nil {
		return ""
	}
	return e.Code.StoreScope
}

func (e CodeDeleted) EventScope() string  { return e.Scope }
func (e ScopeCleared) EventScope() string { return e.Scope }
