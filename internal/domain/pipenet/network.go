package pipenet

import (
	"math"
	"sort"

	"github.com/MRamiBalles/StationAtmos/server/internal/domain/gas"
)

// NetworkID identifies one pipe network.
type NetworkID uint64

// Network is a connected set of pipe nodes sharing one mixture whose
// volume is the sum of the member volumes.
type Network struct {
	ID      NetworkID    `json:"id"`
	Version uint64       `json:"version"`
	Members []NodeID     `json:"members"`
	Air     *gas.Mixture `json:"-"`
}

// Volume returns the pooled volume in litres.
func (n *Network) Volume() float64 {
	if n.Air == nil {
		return 0
	}
	return n.Air.Volume()
}

// Contains reports membership. Members are kept sorted.
func (n *Network) Contains(id NodeID) bool {
	i := sort.Search(len(n.Members), func(i int) bool { return n.Members[i] >= id })
	return i < len(n.Members) && n.Members[i] == id
}

// Result is the outcome of a repartition.
type Result struct {
	// Networks replaces every network passed in as old.
	Networks []*Network
	// Retired lists the IDs of the old networks.
	Retired []NetworkID
	// Released holds the gas share of each removed node, sized to the
	// node's volume. Callers vent it into the surrounding tile.
	Released map[NodeID]*gas.Mixture
	// MolesBefore/After and EnergyBefore/After let callers detect drift.
	MolesBefore  float64
	MolesAfter   float64
	EnergyBefore float64
	EnergyAfter  float64
}

// EnergyDrift is the absolute thermal energy difference across the
// repartition.
func (r Result) EnergyDrift() float64 {
	return math.Abs(r.EnergyAfter - r.EnergyBefore)
}

// MolesDrift is the absolute mole difference across the repartition.
func (r Result) MolesDrift() float64 {
	return math.Abs(r.MolesAfter - r.MolesBefore)
}

// Repartition computes the networks covering the given part of the graph
// after a topology change. It does not mutate its inputs.
//
// before is the graph the old networks were built on, after the graph
// with the change applied. added lists new nodes that belonged to no
// network. Each old network's gas is split among the new components by
// the volume of its surviving members in each; removed members take
// their volume share into Released. Components made only of new nodes
// start empty. Every new network gets an ID from nextID and the given
// version.
func Repartition(before, after *Graph, old []*Network, added []NodeID, version uint64, nextID func() NetworkID) Result {
	res := Result{Released: make(map[NodeID]*gas.Mixture)}

	olds := append([]*Network(nil), old...)
	sort.Slice(olds, func(i, j int) bool { return olds[i].ID < olds[j].ID })

	seeds := append([]NodeID(nil), added...)
	for _, n := range olds {
		res.Retired = append(res.Retired, n.ID)
		if n.Air != nil {
			res.MolesBefore += n.Air.TotalMoles()
			res.EnergyBefore += n.Air.ThermalEnergy()
		}
		for _, m := range n.Members {
			if _, ok := after.Node(m); ok {
				seeds = append(seeds, m)
			}
		}
	}

	comps := after.Components(seeds)
	compOf := make(map[NodeID]int)
	pools := make([]*gas.Mixture, len(comps))
	for i, comp := range comps {
		for _, id := range comp {
			compOf[id] = i
		}
		pools[i] = gas.NewMixture(after.VolumeOf(comp))
	}

	for _, n := range olds {
		if n.Air == nil {
			continue
		}
		work := n.Air.Clone()
		shares := make(map[int]float64)
		var removed []NodeID
		remaining := 0.0
		for _, m := range n.Members {
			node, _ := before.Node(m)
			remaining += node.Volume
			if _, ok := after.Node(m); !ok {
				removed = append(removed, m)
				continue
			}
			shares[compOf[m]] += node.Volume
		}

		for _, m := range removed {
			node, _ := before.Node(m)
			portion := takeShare(work, node.Volume, &remaining)
			out := gas.NewMixture(node.Volume)
			out.Merge(portion)
			res.Released[m] = out
		}

		order := make([]int, 0, len(shares))
		for c := range shares {
			order = append(order, c)
		}
		sort.Ints(order)
		for _, c := range order {
			pools[c].Merge(takeShare(work, shares[c], &remaining))
		}
	}

	for i, comp := range comps {
		net := &Network{
			ID:      nextID(),
			Version: version,
			Members: comp,
			Air:     pools[i],
		}
		res.Networks = append(res.Networks, net)
		res.MolesAfter += net.Air.TotalMoles()
		res.EnergyAfter += net.Air.ThermalEnergy()
	}
	for _, m := range res.Released {
		res.MolesAfter += m.TotalMoles()
		res.EnergyAfter += m.ThermalEnergy()
	}
	return res
}

// takeShare removes volume/remaining of what is left in work. The last
// share takes everything so rounding never strands gas.
func takeShare(work *gas.Mixture, volume float64, remaining *float64) *gas.Mixture {
	if *remaining <= volume || *remaining <= 0 {
		*remaining = 0
		return work.RemoveRatio(1)
	}
	ratio := volume / *remaining
	*remaining -= volume
	return work.RemoveRatio(ratio)
}
