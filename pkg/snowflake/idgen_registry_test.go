package snowflake

import (
	"errors"
	"sync"
	"testing"
)

func TestRegistry_FirstConfigWins(t *testing.T) {
	reg := NewRegistry()

	cfgA := Config{Epoch: DefaultEpoch, NodeIDBits: 8, SequenceBits: 12}
	cfgB := Config{Epoch: DefaultEpoch, NodeIDBits: 8, SequenceBits: 4}
	cfgC := Config{Epoch: DefaultEpoch, NodeIDBits: 8, SequenceBits: 6}

	first, err := reg.GetOrCreate(5, cfgA)
	if err != nil {
		t.Fatal(err)
	}
	second, err := reg.GetOrCreate(5, cfgB)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Fatal("expected the same generator for node 5")
	}
	if second.Layout().SequenceBits != 12 {
		t.Errorf("sequence bits = %d, want 12 from the first config", second.Layout().SequenceBits)
	}
	if second.NodeID() != 5 {
		t.Errorf("node id = %d, want 5", second.NodeID())
	}

	if !reg.Remove(5) {
		t.Fatal("Remove(5) = false, want true")
	}
	if reg.Remove(5) {
		t.Error("second Remove(5) = true, want false")
	}

	third, err := reg.GetOrCreate(5, cfgC)
	if err != nil {
		t.Fatal(err)
	}
	if third == first {
		t.Fatal("expected a fresh generator after Remove")
	}
	if third.Layout().SequenceBits != 6 {
		t.Errorf("sequence bits = %d, want 6 from cfgC", third.Layout().SequenceBits)
	}
}

func TestRegistry_ConcurrentFirstAccess(t *testing.T) {
	reg := NewRegistry()

	const callers = 64
	got := make([]*Generator, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			g, err := reg.GetOrCreate(7, DefaultConfig())
			if err != nil {
				t.Errorf("GetOrCreate error = %v", err)
				return
			}
			got[i] = g
		}(i)
	}
	wg.Wait()

	for i := 1; i < callers; i++ {
		if got[i] != got[0] {
			t.Fatalf("caller %d got a different generator", i)
		}
	}
	if reg.Len() != 1 {
		t.Errorf("Len() = %d, want 1", reg.Len())
	}
}

func TestRegistry_InvalidConfigIsNotStored(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.GetOrCreate(16, Config{NodeIDBits: 4})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("GetOrCreate error = %v, want ErrInvalidConfig", err)
	}
	if _, ok := reg.Get(16); ok {
		t.Error("invalid generator was registered")
	}
}

func TestRegistry_NextIDAcrossNodes(t *testing.T) {
	clock := newManualClock(DefaultEpoch + 10)
	reg := NewRegistry(WithClock(clock))

	seen := make(map[int64]bool)
	for _, node := range []int64{3, 1, 2} {
		for i := 0; i < 5; i++ {
			id, err := reg.NextID(node, DefaultConfig())
			if err != nil {
				t.Fatal(err)
			}
			if seen[id] {
				t.Fatalf("duplicate id %d", id)
			}
			seen[id] = true
		}
	}

	ids := reg.NodeIDs()
	if len(ids) != 3 || ids[0] != 1 || ids[1] != 2 || ids[2] != 3 {
		t.Errorf("NodeIDs() = %v, want [1 2 3]", ids)
	}
}

func TestRegistry_RemoveDoesNotAffectOtherNodes(t *testing.T) {
	reg := NewRegistry()

	g1, _ := reg.GetOrCreate(1, DefaultConfig())
	_, _ = reg.GetOrCreate(2, DefaultConfig())

	reg.Remove(2)

	if g, ok := reg.Get(1); !ok || g != g1 {
		t.Error("node 1 generator changed after removing node 2")
	}
}
