package auth

import (
	"os"
	"time"
)

// EnvironmentStore reads a token from XSCRAPER_AUTH_TOKEN. Read-only;
// useful for CI and one-off runs.
type EnvironmentStore struct{}

func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

func (e *EnvironmentStore) Store(profile *Profile) error {
	return ErrStoreUnavailable
}

func (e *EnvironmentStore) Retrieve(name string) (*Profile, error) {
	token := os.Getenv("XSCRAPER_AUTH_TOKEN")
	if token == "" {
		return nil, ErrProfileNotFound
	}
	if name == "" {
		name = DefaultProfile
	}
	return &Profile{
		Name:         name,
		AuthToken:    token,
		LastModified: time.Now(),
	}, nil
}

func (e *EnvironmentStore) List() ([]*Profile, error) {
	profile, err := e.Retrieve("")
	if err != nil {
		return []*Profile{}, nil
	}
	return []*Profile{profile}, nil
}

func (e *EnvironmentStore) Delete(name string) error {
	return ErrStoreUnavailable
}

func (e *EnvironmentStore) Exists(name string) bool {
	return os.Getenv("XSCRAPER_AUTH_TOKEN") != ""
}
