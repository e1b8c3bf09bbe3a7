package domain

import "time"

// DownloadOutcome is the terminal result reported by the remote source for a
// successful download.
type DownloadOutcome int

const (
	OutcomeNewFile DownloadOutcome = iota
	OutcomeAlreadySatisfied
	OutcomeSkipped
	OutcomeOverwritten
	OutcomeRenamed
)

func (o DownloadOutcome) String() string {
	names := [...]string{"new_file", "already_satisfied", "skipped", "overwritten", "renamed"}
	if o < 0 || int(o) >= len(names) {
		return "unknown"
	}
	return names[o]
}

type DownloadResult struct {
	Outcome DownloadOutcome
	// Path is where the content ended up. Set for OutcomeRenamed, optional otherwise.
	Path string
}

// DownloadRecord describes a completed download.
type DownloadRecord struct {
	Category     Category        `json:"category"`
	ModuleID     string          `json:"module_id"`
	Path         string          `json:"path"`
	LocalPath    string          `json:"local_path"`
	Outcome      DownloadOutcome `json:"outcome"`
	DownloadedAt time.Time       `json:"downloaded_at"`
}
