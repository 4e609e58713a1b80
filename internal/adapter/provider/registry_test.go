package provider

import (
	"context"
	"testing"

	"github.com/cwygoda/tokbot/internal/domain"
)

type mockProvider struct {
	name string
}

func (m *mockProvider) Name() string { return m.name }
func (m *mockProvider) FetchCandidates(ctx context.Context, url domain.SourceURL) ([]domain.Descriptor, error) {
	return nil, nil
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	r.Register(&mockProvider{name: "p1"})
	r.Register(&mockProvider{name: "p2"})

	if got := len(r.providers); got != 2 {
		t.Errorf("registered %d providers, want 2", got)
	}
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	r := NewRegistry()
	first := &mockProvider{name: "snaptik"}
	second := &mockProvider{name: "snaptik"}

	r.Register(first)
	r.Register(second)

	if got := len(r.providers); got != 1 {
		t.Fatalf("registered %d providers, want 1", got)
	}
	if r.Get("snaptik") != second {
		t.Error("Get() should return the replacement")
	}
}

func TestRegistry_Select(t *testing.T) {
	r := NewRegistry()
	r.Register(&mockProvider{name: "snaptik"})
	r.Register(&mockProvider{name: "tikmate"})
	r.Register(&mockProvider{name: "mdown"})

	tests := []struct {
		names   []string
		want    []string
		wantErr bool
	}{
		{[]string{"mdown", "snaptik"}, []string{"mdown", "snaptik"}, false},
		{[]string{"tikmate"}, []string{"tikmate"}, false},
		{[]string{"tikmate", "missing"}, nil, true},
	}

	for _, tt := range tests {
		got, err := r.Select(tt.names)
		if (err != nil) != tt.wantErr {
			t.Errorf("Select(%v) error = %v, wantErr %v", tt.names, err, tt.wantErr)
			continue
		}
		if len(got) != len(tt.want) {
			t.Errorf("Select(%v) len = %d, want %d", tt.names, len(got), len(tt.want))
			continue
		}
		for i, p := range got {
			if p.Name() != tt.want[i] {
				t.Errorf("Select(%v)[%d] = %q, want %q", tt.names, i, p.Name(), tt.want[i])
			}
		}
	}
}

func TestRegistry_GetMissing(t *testing.T) {
	if NewRegistry().Get("nothing") != nil {
		t.Error("Get() on empty registry should return nil")
	}
}
