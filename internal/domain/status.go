package domain

// FetchStatus tracks an in-flight fetch for one category. Never persisted;
// the zero value is Idle so freshly loaded envelopes start idle.
type FetchStatus int

const (
	FetchIdle FetchStatus = iota
	FetchFetching
	FetchError
)

func (s FetchStatus) String() string {
	switch s {
	case FetchFetching:
		return "fetching"
	case FetchError:
		return "error"
	}
	return "idle"
}

// IsBusy returns true while a fetch is outstanding.
func (s FetchStatus) IsBusy() bool {
	return s == FetchFetching
}

// DownloadStatus tracks an in-flight download of a single resource.
type DownloadStatus int

const (
	DownloadIdle DownloadStatus = iota
	DownloadFetching
	DownloadError
)

func (s DownloadStatus) String() string {
	switch s {
	case DownloadFetching:
		return "fetching"
	case DownloadError:
		return "error"
	}
	return "idle"
}
