package backend

import (
	"errors"
	"slices"
	"testing"
)

type fakeBackend struct {
	Backend
	name string
}

func (f *fakeBackend) Name() string { return f.name }
func (f *fakeBackend) Close()       {}

func withRegistry(t *testing.T, entries map[string]Factory) {
	t.Helper()
	registryMu.Lock()
	saved := backends
	backends = entries
	registryMu.Unlock()
	t.Cleanup(func() {
		registryMu.Lock()
		backends = saved
		registryMu.Unlock()
	})
}

func opens(name string) Factory {
	return func() (Backend, error) { return &fakeBackend{name: name}, nil }
}

func fails(err error) Factory {
	return func() (Backend, error) { return nil, err }
}

func TestDefaultPriority(t *testing.T) {
	gpuErr := errors.New("no adapter")
	tests := []struct {
		name    string
		entries map[string]Factory
		want    string
		wantErr bool
	}{
		{
			name:    "native preferred",
			entries: map[string]Factory{BackendNative: opens(BackendNative), BackendSoftware: opens(BackendSoftware)},
			want:    BackendNative,
		},
		{
			name:    "falls back when native fails",
			entries: map[string]Factory{BackendNative: fails(gpuErr), BackendSoftware: opens(BackendSoftware)},
			want:    BackendSoftware,
		},
		{
			name:    "other backends last",
			entries: map[string]Factory{"custom": opens("custom"), BackendNative: fails(gpuErr)},
			want:    "custom",
		},
		{
			name:    "nothing registered",
			entries: map[string]Factory{},
			wantErr: true,
		},
		{
			name:    "everything fails",
			entries: map[string]Factory{BackendNative: fails(gpuErr)},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withRegistry(t, tt.entries)
			b, err := Default()
			if tt.wantErr {
				if !errors.Is(err, ErrBackendNotAvailable) {
					t.Errorf("Default() error = %v, want ErrBackendNotAvailable", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Default() error = %v", err)
			}
			if b.Name() != tt.want {
				t.Errorf("Default().Name() = %q, want %q", b.Name(), tt.want)
			}
		})
	}
}

func TestRegisterGet(t *testing.T) {
	withRegistry(t, map[string]Factory{})

	if _, err := Get("missing"); !errors.Is(err, ErrBackendNotAvailable) {
		t.Errorf("Get(missing) error = %v, want ErrBackendNotAvailable", err)
	}

	Register("b", opens("b"))
	Register("a", opens("a"))
	if got := Available(); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("Available() = %v, want [a b]", got)
	}
	if !IsRegistered("a") {
		t.Error("IsRegistered(a) = false, want true")
	}

	b, err := Get("a")
	if err != nil || b.Name() != "a" {
		t.Errorf("Get(a) = %v, %v, want backend a", b, err)
	}

	Unregister("a")
	if IsRegistered("a") {
		t.Error("IsRegistered(a) after Unregister = true, want false")
	}
}
