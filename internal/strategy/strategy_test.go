package strategy

import (
	"context"
	"errors"
	"testing"

	"panelsim/internal/domain"
	"panelsim/internal/panel"
)

// stubStrategy is a minimal Strategy implementation used in registry tests.
type stubStrategy struct {
	name     string
	lookback int
}

func (s *stubStrategy) Name() string             { return s.name }
func (s *stubStrategy) RequiredNumberDates() int { return s.lookback }
func (s *stubStrategy) CreatePortfolio(_ context.Context, _ *panel.Panel, _ []string) (domain.Allocation, error) {
	return nil, nil
}

type signedStub struct {
	stubStrategy
}

func (s *signedStub) Signature() string { return "signed_" + s.name }

func stubFactory(name string, lookback int) Factory {
	return func() (Strategy, error) {
		return &stubStrategy{name: name, lookback: lookback}, nil
	}
}

func TestRegistryRegisterAndNew(t *testing.T) {
	r := NewRegistry()
	r.Register("test-strategy", stubFactory("test-strategy", 2))

	got, err := r.New("test-strategy")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got.Name() != "test-strategy" {
		t.Errorf("New returned strategy with Name() = %q, want %q", got.Name(), "test-strategy")
	}

	other, _ := r.New("test-strategy")
	if other == got {
		t.Error("New returned a shared instance, want a fresh one per call")
	}
}

func TestRegistryNew_NotFound(t *testing.T) {
	r := NewRegistry()
	if _, err := r.New("nonexistent"); !errors.Is(err, ErrUnknownStrategy) {
		t.Errorf("New error = %v, want ErrUnknownStrategy", err)
	}
	if _, ok := r.Factory("nonexistent"); ok {
		t.Error("Factory returned true for unregistered strategy")
	}
}

func TestRegistryNew_ShortLookback(t *testing.T) {
	r := NewRegistry()
	r.Register("short", stubFactory("short", 1))
	if _, err := r.New("short"); err == nil {
		t.Error("New accepted a strategy with a lookback of 1")
	}
}

func TestRegistryNew_FactoryError(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("boom")
	r.Register("broken", func() (Strategy, error) { return nil, boom })
	if _, err := r.New("broken"); !errors.Is(err, boom) {
		t.Errorf("New error = %v, want %v", err, boom)
	}
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry()
	r.Register("beta", stubFactory("beta", 2))
	r.Register("alpha", stubFactory("alpha", 2))

	names := r.List()
	if len(names) != 2 {
		t.Fatalf("List returned %d names, want 2", len(names))
	}
	// List returns sorted names.
	if names[0] != "alpha" || names[1] != "beta" {
		t.Errorf("List returned %v, want [alpha beta]", names)
	}
}

func TestSignature(t *testing.T) {
	plain := &stubStrategy{name: "plain", lookback: 2}
	if got := Signature(plain); got != "plain" {
		t.Errorf("Signature(plain) = %q, want %q", got, "plain")
	}
	signed := &signedStub{stubStrategy{name: "x", lookback: 2}}
	if got := Signature(signed); got != "signed_x" {
		t.Errorf("Signature(signed) = %q, want %q", got, "signed_x")
	}
}
