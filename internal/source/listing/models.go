package listing

// ModuleEntry is one record of modules.json.
type ModuleEntry struct {
	ID         string `json:"id"`
	Code       string `json:"code"`
	Name       string `json:"name"`
	Term       string `json:"term"`
	IsTaking   bool   `json:"is_taking"`
	IsTeaching bool   `json:"is_teaching"`
}

// ResourceEntry is one record of <category>/<module id>.json.
type ResourceEntry struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

// Handle is the remote handle attached to every fetched resource. It names
// the content blob backing the resource.
type Handle struct {
	ID       string
	ModuleID string
}
