package state

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/creasty/defaults"
	"github.com/goccy/go-json"

	"lms_mirror/internal/storage"
)

// SettingsFileName is the document name of the Settings aggregate.
const SettingsFileName = "settings.json"

type settingsDocument struct {
	Username         *string `json:"username,omitempty"`
	Password         *string `json:"password,omitempty"`
	SaveUsername     bool    `json:"save_username" default:"true"`
	SavePassword     bool    `json:"save_password" default:"false"`
	DownloadLocation *string `json:"download_location,omitempty"`
}

func newSettingsDocument() (settingsDocument, error) {
	var doc settingsDocument
	if err := defaults.Set(&doc); err != nil {
		return settingsDocument{}, fmt.Errorf("set settings defaults: %w", err)
	}
	return doc, nil
}

func (doc settingsDocument) clone() settingsDocument {
	c := settingsDocument{
		SaveUsername: doc.SaveUsername,
		SavePassword: doc.SavePassword,
	}
	c.Username = cloneString(doc.Username)
	c.Password = cloneString(doc.Password)
	c.DownloadLocation = cloneString(doc.DownloadLocation)
	return c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// Settings holds user preferences and, when the user opts in, login
// details.
type Settings struct {
	mu      sync.RWMutex
	tracker storage.Tracker
	doc     settingsDocument
}

// NewSettings returns settings holding the defaults. defaults.Set only fails
// on a non-struct target or a malformed default tag, neither of which
// settingsDocument has, so the error is not surfaced here.
func NewSettings() *Settings {
	doc, _ := newSettingsDocument()
	return &Settings{doc: doc}
}

func (s *Settings) UnmarshalJSON(b []byte) error {
	doc, err := newSettingsDocument()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return err
	}

	s.mu.Lock()
	s.doc = doc
	s.mu.Unlock()
	return nil
}

func (s *Settings) Tracker() *storage.Tracker {
	return &s.tracker
}

func (s *Settings) Snapshot() any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.clone()
}

// SetLoginDetails stores the credentials the save toggles allow.
func (s *Settings) SetLoginDetails(username, password string) {
	s.mu.Lock()
	if s.doc.SaveUsername {
		s.doc.Username = &username
	}
	if s.doc.SavePassword {
		s.doc.Password = &password
	}
	s.mu.Unlock()

	s.tracker.MarkDirty()
}

// SetSaveUsername toggles persisting the username. Turning it off forgets
// the stored value.
func (s *Settings) SetSaveUsername(save bool) {
	s.mu.Lock()
	s.doc.SaveUsername = save
	if !save {
		s.doc.Username = nil
	}
	s.mu.Unlock()

	s.tracker.MarkDirty()
}

// SetSavePassword toggles persisting the password. Turning it off forgets
// the stored value.
func (s *Settings) SetSavePassword(save bool) {
	s.mu.Lock()
	s.doc.SavePassword = save
	if !save {
		s.doc.Password = nil
	}
	s.mu.Unlock()

	s.tracker.MarkDirty()
}

func (s *Settings) SetDownloadLocation(dir string) {
	s.mu.Lock()
	s.doc.DownloadLocation = &dir
	s.mu.Unlock()

	s.tracker.MarkDirty()
}

func (s *Settings) Username() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.doc.Username == nil {
		return "", false
	}
	return *s.doc.Username, true
}

func (s *Settings) Password() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.doc.Password == nil {
		return "", false
	}
	return *s.doc.Password, true
}

func (s *Settings) SaveUsername() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.SaveUsername
}

func (s *Settings) SavePassword() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.SavePassword
}

// DownloadLocation returns the configured download directory, falling back
// to the user's Downloads folder.
func (s *Settings) DownloadLocation() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.doc.DownloadLocation != nil && *s.doc.DownloadLocation != "" {
		return *s.doc.DownloadLocation
	}
	return DefaultDownloadLocation()
}

func DefaultDownloadLocation() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "Downloads"
	}
	return filepath.Join(home, "Downloads")
}
