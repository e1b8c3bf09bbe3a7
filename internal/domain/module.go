package domain

import "time"

// UnknownModuleCode is used for local paths when a resource's module is not
// in the lookup.
const UnknownModuleCode = "Unknown"

type Module struct {
	ID          string    `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Term        string    `json:"term"`
	IsTaking    bool      `json:"is_taking"`
	IsTeaching  bool      `json:"is_teaching"`
	LastUpdated time.Time `json:"last_updated"`

	// Remote is the remote session's module object, valid for this run only.
	Remote any `json:"-"`
}

// ModuleKey is the deduplication key of a module.
type ModuleKey struct {
	Term string
	Code string
}

// EmptyModule returns the zero module with an epoch timestamp.
func EmptyModule() Module {
	return Module{LastUpdated: time.Unix(0, 0).UTC()}
}

func (m Module) Key() ModuleKey {
	return ModuleKey{Term: m.Term, Code: m.Code}
}

// HasAccess reports whether the user takes or teaches the module.
func (m Module) HasAccess() bool {
	return m.IsTaking || m.IsTeaching
}

// ModuleLookup maps module ids to modules.
type ModuleLookup map[string]Module

func NewModuleLookup(modules []Module) ModuleLookup {
	lookup := make(ModuleLookup, len(modules))
	for _, m := range modules {
		lookup[m.ID] = m
	}
	return lookup
}

// CodeOrUnknown returns the module code for id, or UnknownModuleCode.
func (l ModuleLookup) CodeOrUnknown(id string) string {
	if m, ok := l[id]; ok && m.Code != "" {
		return m.Code
	}
	return UnknownModuleCode
}
