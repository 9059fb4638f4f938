package voice

import (
	"errors"
	"testing"
)

func TestCatalogFind(t *testing.T) {
	c := DefaultCatalog()

	tests := []struct {
		query   string
		want    string
		wantErr error
	}{
		{query: "", want: "Kore"},
		{query: "kore", want: "Kore"},
		{query: "FENRIR", want: "Fenrir"},
		{query: "zeph", want: "Zephyr"},
		{query: "chrn", want: "Charon"},
		{query: "xyzzy", wantErr: ErrUnknownVoice},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := c.Find(tt.query)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Find(%q) error = %v, want %v", tt.query, err, tt.wantErr)
			}
			if err == nil && got.ID != tt.want {
				t.Errorf("Find(%q) = %q, want %q", tt.query, got.ID, tt.want)
			}
		})
	}
}

func TestVoiceSpeed(t *testing.T) {
	if got := (Voice{ID: "x"}).Speed(); got != DefaultRate {
		t.Errorf("Speed() = %v, want %v", got, DefaultRate)
	}
	if got := (Voice{ID: "x", Rate: 1.25}).Speed(); got != 1.25 {
		t.Errorf("Speed() = %v, want 1.25", got)
	}
}

func TestCatalogAllIsCopy(t *testing.T) {
	c := DefaultCatalog()
	all := c.All()
	all[0].ID = "changed"
	if c.Default().ID != "Kore" {
		t.Error("All() exposed internal slice")
	}
	if len(all) != 5 {
		t.Errorf("got %d voices, want 5", len(all))
	}
}

func TestEmptyCatalogDefault(t *testing.T) {
	if got := NewCatalog().Default(); got.Speed() != DefaultRate {
		t.Errorf("empty catalog default speed = %v", got.Speed())
	}
}
