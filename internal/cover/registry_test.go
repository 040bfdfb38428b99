package cover

import (
	"context"
	"errors"
	"testing"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(NewSQLiteRepository(setupTestDB(t)))
}

func TestRegistrySeed(t *testing.T) {
	registry := newTestRegistry(t)
	ctx := context.Background()

	seed := []*Group{
		testGroup("south", "South Facade"),
		testGroup("west", "West Facade"),
	}
	if err := registry.Seed(ctx, seed); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	if registry.Count() != 2 {
		t.Errorf("Count() = %d, want 2", registry.Count())
	}

	t.Run("reseed preserves operator edits", func(t *testing.T) {
		edited, err := registry.Get(ctx, "south")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		edited.Name = "South Facade (tuned)"
		edited.Geometry.DefaultHeight = 45
		if err := registry.Update(ctx, edited); err != nil {
			t.Fatalf("Update() error = %v", err)
		}

		// Restart-style reseed with the original file definitions
		if err := registry.Seed(ctx, seed); err != nil {
			t.Fatalf("Seed() error = %v", err)
		}

		got, err := registry.Get(ctx, "south")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.Name != "South Facade (tuned)" {
			t.Errorf("Name = %q, want the edited row preserved", got.Name)
		}
		if got.Geometry.DefaultHeight != 45 {
			t.Errorf("DefaultHeight = %v, want 45", got.Geometry.DefaultHeight)
		}
	})
}

func TestRegistryGet(t *testing.T) {
	registry := newTestRegistry(t)
	ctx := context.Background()

	if err := registry.Create(ctx, testGroup("g1", "Group One")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	t.Run("returns a deep copy", func(t *testing.T) {
		first, err := registry.Get(ctx, "g1")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		first.Name = "mutated"
		first.Devices[0] = "mutated-device"

		second, err := registry.Get(ctx, "g1")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if second.Name != "Group One" {
			t.Errorf("Name = %q, caller mutation leaked into the cache", second.Name)
		}
		if second.Devices[0] != "blind-g1" {
			t.Errorf("Devices[0] = %q, caller mutation leaked into the cache", second.Devices[0])
		}
	})

	t.Run("returns ErrGroupNotFound when missing", func(t *testing.T) {
		_, err := registry.Get(ctx, "nonexistent")
		if !errors.Is(err, ErrGroupNotFound) {
			t.Errorf("Get() error = %v, want ErrGroupNotFound", err)
		}
	})
}

func TestRegistryListEnabled(t *testing.T) {
	registry := newTestRegistry(t)
	ctx := context.Background()

	enabled := testGroup("on", "Enabled Group")
	disabled := testGroup("off", "Disabled Group")
	disabled.Enabled = false

	for _, g := range []*Group{enabled, disabled} {
		if err := registry.Create(ctx, g); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	all, err := registry.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 2 {
		t.Errorf("List() returned %d groups, want 2", len(all))
	}

	active, err := registry.ListEnabled(ctx)
	if err != nil {
		t.Fatalf("ListEnabled() error = %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("ListEnabled() returned %d groups, want 1", len(active))
	}
	if active[0].ID != "on" {
		t.Errorf("ListEnabled()[0].ID = %q, want %q", active[0].ID, "on")
	}
}

func TestRegistryCreateValidates(t *testing.T) {
	registry := newTestRegistry(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*Group)
	}{
		{name: "missing id", mutate: func(g *Group) { g.ID = "" }},
		{name: "missing name", mutate: func(g *Group) { g.Name = "" }},
		{name: "no devices", mutate: func(g *Group) { g.Devices = nil }},
		{name: "unknown type", mutate: func(g *Group) { g.Type = Type("sideways") }},
		{name: "incomplete geometry", mutate: func(g *Group) { g.Geometry.Distance = 0 }},
		{name: "azimuth out of range", mutate: func(g *Group) { g.Geometry.Azimuth = 400 }},
		{name: "negative min change", mutate: func(g *Group) { g.Behaviour.MinChange = -1 }},
		{
			name: "end before start",
			mutate: func(g *Group) {
				g.Behaviour.StartMinutes = 1000
				g.Behaviour.EndMinutes = 500
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := testGroup("valid-id", "Valid Name")
			tt.mutate(g)

			err := registry.Create(ctx, g)
			if !errors.Is(err, ErrInvalidGroup) {
				t.Errorf("Create() error = %v, want ErrInvalidGroup", err)
			}
		})
	}

	if registry.Count() != 0 {
		t.Errorf("Count() = %d after rejected creates, want 0", registry.Count())
	}
}

func TestRegistryDelete(t *testing.T) {
	registry := newTestRegistry(t)
	ctx := context.Background()

	if err := registry.Create(ctx, testGroup("bye", "Short Lived")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := registry.Delete(ctx, "bye"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if registry.Count() != 0 {
		t.Errorf("Count() = %d after delete, want 0", registry.Count())
	}
	if _, err := registry.Get(ctx, "bye"); !errors.Is(err, ErrGroupNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrGroupNotFound", err)
	}
}

func TestRegistryDeviceIndex(t *testing.T) {
	registry := newTestRegistry(t)
	ctx := context.Background()

	south := testGroup("south", "South")
	south.Devices = []string{"blind-1", "blind-2"}
	west := testGroup("west", "West")
	west.Devices = []string{"blind-3"}

	for _, g := range []*Group{south, west} {
		if err := registry.Create(ctx, g); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	idx := registry.DeviceIndex()
	if len(idx) != 3 {
		t.Fatalf("DeviceIndex() size = %d, want 3", len(idx))
	}
	if idx["blind-2"] != "south" || idx["blind-3"] != "west" {
		t.Errorf("DeviceIndex() = %v, want blind-2->south, blind-3->west", idx)
	}
}

func TestRegistryGetStats(t *testing.T) {
	registry := newTestRegistry(t)
	ctx := context.Background()

	vertical := testGroup("v1", "Vertical")
	vertical.Devices = []string{"blind-1", "blind-2"}

	venetian := testGroup("t1", "Venetian")
	venetian.Type = TypeTilt
	venetian.Enabled = false
	venetian.Geometry.SlatDistance = 2.0
	venetian.Geometry.SlatDepth = 3.0
	venetian.Geometry.TiltMode = TiltModeBidirectional

	for _, g := range []*Group{vertical, venetian} {
		if err := registry.Create(ctx, g); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	stats := registry.GetStats()
	if stats.TotalGroups != 2 {
		t.Errorf("TotalGroups = %d, want 2", stats.TotalGroups)
	}
	if stats.EnabledGroups != 1 {
		t.Errorf("EnabledGroups = %d, want 1", stats.EnabledGroups)
	}
	if stats.TotalDevices != 3 {
		t.Errorf("TotalDevices = %d, want 3", stats.TotalDevices)
	}
	if stats.ByType[TypeVertical] != 1 || stats.ByType[TypeTilt] != 1 {
		t.Errorf("ByType = %v, want one vertical and one tilt", stats.ByType)
	}
}
