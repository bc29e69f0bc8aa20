package auth

import "sync"

// MockStore is an in-memory TokenStore for tests. Failure modes can be
// injected per operation.
type MockStore struct {
	mu       sync.RWMutex
	profiles map[string]*Profile

	StoreErr    error
	RetrieveErr error
	ListErr     error
	DeleteErr   error
}

func NewMockStore() *MockStore {
	return &MockStore{profiles: make(map[string]*Profile)}
}

func (m *MockStore) Store(profile *Profile) error {
	if m.StoreErr != nil {
		return m.StoreErr
	}
	if profile == nil || profile.Name == "" {
		return ErrInvalidProfile
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *profile
	m.profiles[profile.Name] = &cp
	return nil
}

func (m *MockStore) Retrieve(name string) (*Profile, error) {
	if m.RetrieveErr != nil {
		return nil, m.RetrieveErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	profile, ok := m.profiles[name]
	if !ok {
		return nil, ErrProfileNotFound
	}
	cp := *profile
	return &cp, nil
}

func (m *MockStore) List() ([]*Profile, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MockStore) Delete(name string) error {
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[name]; !ok {
		return ErrProfileNotFound
	}
	delete(m.profiles, name)
	return nil
}

func (m *MockStore) Exists(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.profiles[name]
	return ok
}
