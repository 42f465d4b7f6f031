package application

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/ericfisherdev/seccin/internal/domain/model"
	"github.com/ericfisherdev/seccin/internal/domain/port/driven"
)

type mockArchive struct {
	extractErr error
	packErr    error
	extracts   []string
	packs      []string
}

func (m *mockArchive) Extract(archivePath string, layout driven.Layout) error {
	m.extracts = append(m.extracts, archivePath)
	if m.extractErr != nil {
		return m.extractErr
	}
	return os.MkdirAll(layout.CipherDir, 0o700)
}

func (m *mockArchive) Pack(_ driven.Layout, archivePath string) error {
	m.packs = append(m.packs, archivePath)
	return m.packErr
}

type mockVolume struct {
	depErr     error
	createErr  error
	mountErr   error
	unmountErr error
	password   string

	creates   int
	mounts    int
	unmounts  int
	mountedAt string
}

func (m *mockVolume) CheckDependencies() error { return m.depErr }

func (m *mockVolume) Create(_ context.Context, _ driven.Layout, password string) error {
	m.creates++
	if m.createErr != nil {
		return m.createErr
	}
	m.password = password
	return nil
}

func (m *mockVolume) Mount(_ context.Context, layout driven.Layout, password string) (driven.Mount, error) {
	m.mounts++
	if m.mountErr != nil {
		return nil, m.mountErr
	}
	if m.password != "" && password != m.password {
		return nil, driven.ErrWrongPassword
	}
	m.mountedAt = layout.MountPoint
	return &mockMount{vol: m, path: layout.MountPoint}, nil
}

type mockMount struct {
	vol  *mockVolume
	path string
}

func (m *mockMount) Path() string { return m.path }

func (m *mockMount) Unmount(context.Context) error {
	m.vol.unmounts++
	return m.vol.unmountErr
}

// memStore is an in-memory SecretStore shared across sessions.
type memStore struct {
	mu       sync.Mutex
	secrets  map[string]string
	setErr   error
	closeErr error
	opens    int
	closes   int
	sets     int
}

func newMemStore() *memStore {
	return &memStore{secrets: map[string]string{}}
}

func (m *memStore) opener() driven.StoreOpener {
	return func(context.Context, string) (driven.SecretSession, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.opens++
		return &memSession{store: m}, nil
	}
}

type memSession struct {
	store *memStore
}

func (s *memSession) Set(_ context.Context, service, value string) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	if s.store.setErr != nil {
		return s.store.setErr
	}
	s.store.sets++
	s.store.secrets[service] = value
	return nil
}

func (s *memSession) Get(_ context.Context, service string) (model.Secret, error) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	v, ok := s.store.secrets[service]
	if !ok {
		return model.Secret{}, fmt.Errorf("get secret %q: %w", service, driven.ErrSecretNotFound)
	}
	return model.Secret{Service: service, Value: v}, nil
}

func (s *memSession) List(ctx context.Context) ([]model.Secret, error) {
	services, _ := s.Services(ctx)
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	out := make([]model.Secret, 0, len(services))
	for _, svc := range services {
		out = append(out, model.Secret{Service: svc, Value: s.store.secrets[svc]})
	}
	return out, nil
}

func (s *memSession) Services(context.Context) ([]string, error) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	out := make([]string, 0, len(s.store.secrets))
	for k := range s.store.secrets {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

func (s *memSession) Delete(_ context.Context, service string) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	if _, ok := s.store.secrets[service]; !ok {
		return driven.ErrSecretNotFound
	}
	delete(s.store.secrets, service)
	return nil
}

func (s *memSession) Close() error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	s.store.closes++
	return s.store.closeErr
}

type mockBackup struct {
	secrets []model.Secret
	readErr error
	written []model.Secret
}

func (m *mockBackup) ReadBackup() ([]model.Secret, error) {
	return m.secrets, m.readErr
}

func (m *mockBackup) WriteBackup(secrets []model.Secret) error {
	m.written = secrets
	return nil
}

var errBoom = errors.New("boom")
