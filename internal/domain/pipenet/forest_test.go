package pipenet

import (
	"math"
	"testing"

	"github.com/MRamiBalles/StationAtmos/server/internal/domain/gas"
)

func near(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

// line builds a chain 1-2-...-n of pipe nodes.
func line(t *testing.T, n int) *Forest {
	t.Helper()
	f := NewForest()
	for i := 1; i <= n; i++ {
		var links []NodeID
		if i > 1 {
			links = append(links, NodeID(i-1))
		}
		f.AddNode(Node{ID: NodeID(i), Volume: gas.PipeVolume}, links...)
	}
	return f
}

func TestForest_ChainIsOneNetwork(t *testing.T) {
	f := line(t, 4)
	nets := f.Networks()
	if len(nets) != 1 {
		t.Fatalf("Expected 1 network, got %d", len(nets))
	}
	if !near(nets[0].Volume(), 4*gas.PipeVolume, 1e-9) {
		t.Errorf("Expected volume %v, got %v", 4*gas.PipeVolume, nets[0].Volume())
	}
	for i := 1; i <= 4; i++ {
		n, ok := f.NetworkOf(NodeID(i))
		if !ok || n.ID != nets[0].ID {
			t.Errorf("Node %d not in the chain network", i)
		}
	}
}

func TestForest_SplitConservesGas(t *testing.T) {
	f := line(t, 4)
	net, _ := f.NetworkOf(1)
	net.Air.SetMoles(gas.Nitrogen, 100)
	net.Air.SetTemperature(400)
	energy := net.Air.ThermalEnergy()

	res := f.Disconnect(2, 3)
	if len(res.Networks) != 2 {
		t.Fatalf("Expected split into 2 networks, got %d", len(res.Networks))
	}

	a, _ := f.NetworkOf(1)
	b, _ := f.NetworkOf(4)
	if a.ID == b.ID {
		t.Fatal("Expected nodes 1 and 4 in different networks")
	}
	total := a.Air.TotalMoles() + b.Air.TotalMoles()
	if !near(total, 100, 1e-9) {
		t.Errorf("Expected 100 moles after split, got %v", total)
	}
	if !near(a.Air.Moles(gas.Nitrogen), 50, 1e-9) {
		t.Errorf("Expected even split by volume, got %v", a.Air.Moles(gas.Nitrogen))
	}
	if !near(a.Air.ThermalEnergy()+b.Air.ThermalEnergy(), energy, 1e-6) {
		t.Error("Energy not conserved on split")
	}
	if res.EnergyDrift() > 1e-6 || res.MolesDrift() > 1e-9 {
		t.Errorf("Unexpected drift: energy=%v moles=%v", res.EnergyDrift(), res.MolesDrift())
	}
}

func TestForest_MergeBlendsTemperature(t *testing.T) {
	f := NewForest()
	f.AddNode(Node{ID: 1, Volume: 100})
	f.AddNode(Node{ID: 2, Volume: 300})

	a, _ := f.NetworkOf(1)
	b, _ := f.NetworkOf(2)
	a.Air.SetMoles(gas.Oxygen, 10)
	a.Air.SetTemperature(300)
	b.Air.SetMoles(gas.Oxygen, 10)
	b.Air.SetTemperature(500)

	f.Connect(1, 2)
	merged, _ := f.NetworkOf(1)
	other, _ := f.NetworkOf(2)
	if merged.ID != other.ID {
		t.Fatal("Expected one network after Connect")
	}
	if !near(merged.Volume(), 400, 1e-9) {
		t.Errorf("Expected pooled volume 400, got %v", merged.Volume())
	}
	if !near(merged.Air.TotalMoles(), 20, 1e-9) {
		t.Errorf("Expected 20 moles, got %v", merged.Air.TotalMoles())
	}
	if !near(merged.Air.Temperature(), 400, 1e-9) {
		t.Errorf("Expected 400K blend, got %v", merged.Air.Temperature())
	}
}

func TestForest_RemoveNodeReleasesShare(t *testing.T) {
	f := line(t, 3)
	net, _ := f.NetworkOf(1)
	net.Air.SetMoles(gas.Plasma, 30)

	res := f.RemoveNode(2)
	released, ok := res.Released[2]
	if !ok {
		t.Fatal("Expected released gas for node 2")
	}
	if !near(released.TotalMoles(), 10, 1e-9) {
		t.Errorf("Expected 10 moles released, got %v", released.TotalMoles())
	}
	if !near(released.Volume(), gas.PipeVolume, 1e-9) {
		t.Errorf("Released mixture should carry the node volume, got %v", released.Volume())
	}
	if f.HasNode(2) {
		t.Error("Node 2 should be gone")
	}
	if len(f.Networks()) != 2 {
		t.Errorf("Removing the middle node should split the chain, got %d networks", len(f.Networks()))
	}
	var left float64
	for _, n := range f.Networks() {
		left += n.Air.TotalMoles()
	}
	if !near(left+released.TotalMoles(), 30, 1e-9) {
		t.Errorf("Moles not conserved: %v", left+released.TotalMoles())
	}
}

func TestForest_UntouchedNetworksKeepIdentity(t *testing.T) {
	f := NewForest()
	f.AddNode(Node{ID: 1})
	f.AddNode(Node{ID: 10})
	keep, _ := f.NetworkOf(10)

	f.AddNode(Node{ID: 2}, 1)
	still, _ := f.NetworkOf(10)
	if still != keep {
		t.Error("Network of an unrelated node was rebuilt")
	}
	joined, _ := f.NetworkOf(2)
	if joined.Version != f.Version() {
		t.Errorf("Expected version %d, got %d", f.Version(), joined.Version)
	}
}

func TestForest_UnknownEditsIgnored(t *testing.T) {
	f := line(t, 2)
	before := f.Networks()[0]
	res := f.Connect(1, 99)
	if len(res.Networks) != 0 {
		t.Errorf("Expected no repartition, got %d networks", len(res.Networks))
	}
	if f.Networks()[0] != before {
		t.Error("Network replaced by a no-op edit")
	}
}

func TestGraph_ComponentsDeterministic(t *testing.T) {
	g := NewGraph()
	for _, id := range []NodeID{5, 3, 9, 1} {
		g.AddNode(Node{ID: id})
	}
	g.Link(5, 9)
	g.Link(3, 1)

	comps := g.Components([]NodeID{9, 3, 5, 1})
	if len(comps) != 2 {
		t.Fatalf("Expected 2 components, got %d", len(comps))
	}
	if comps[0][0] != 1 || comps[0][1] != 3 {
		t.Errorf("Unexpected first component %v", comps[0])
	}
	if comps[1][0] != 5 || comps[1][1] != 9 {
		t.Errorf("Unexpected second component %v", comps[1])
	}
}
