package pipenet

import (
	"sort"

	"github.com/MRamiBalles/StationAtmos/server/internal/domain/gas"
)

// Delta is one batch of topology edits.
type Delta struct {
	AddNodes    []Node
	RemoveNodes []NodeID
	Link        []Link
	Unlink      []Link
}

// Empty reports whether the delta changes nothing.
func (d Delta) Empty() bool {
	return len(d.AddNodes) == 0 && len(d.RemoveNodes) == 0 && len(d.Link) == 0 && len(d.Unlink) == 0
}

// Forest owns the pipe graph and the networks partitioning it. Every
// node belongs to exactly one network. Devices must resolve their
// network through NetworkOf each time, since any edit can retire it.
type Forest struct {
	graph    *Graph
	networks map[NetworkID]*Network
	nodeNet  map[NodeID]NetworkID
	lastID   NetworkID
	version  uint64
}

// NewForest returns an empty forest.
func NewForest() *Forest {
	return &Forest{
		graph:    NewGraph(),
		networks: make(map[NetworkID]*Network),
		nodeNet:  make(map[NodeID]NetworkID),
	}
}

// Version increases with every applied delta.
func (f *Forest) Version() uint64 {
	return f.version
}

// Graph exposes the current topology read-only by convention.
func (f *Forest) Graph() *Graph {
	return f.graph
}

// HasNode reports whether id exists.
func (f *Forest) HasNode(id NodeID) bool {
	_, ok := f.graph.Node(id)
	return ok
}

// NetworkOf returns the network currently holding node id.
func (f *Forest) NetworkOf(id NodeID) (*Network, bool) {
	nid, ok := f.nodeNet[id]
	if !ok {
		return nil, false
	}
	n, ok := f.networks[nid]
	return n, ok
}

// Network looks up a network by ID.
func (f *Forest) Network(id NetworkID) (*Network, bool) {
	n, ok := f.networks[id]
	return n, ok
}

// Networks returns all networks ordered by ID.
func (f *Forest) Networks() []*Network {
	out := make([]*Network, 0, len(f.networks))
	for _, n := range f.networks {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AddNode adds a node linked to the listed existing nodes.
func (f *Forest) AddNode(n Node, links ...NodeID) Result {
	d := Delta{AddNodes: []Node{n}}
	for _, l := range links {
		d.Link = append(d.Link, Link{A: n.ID, B: l})
	}
	return f.Apply(d)
}

// RemoveNode deletes a node; its gas share is returned in Released.
func (f *Forest) RemoveNode(id NodeID) Result {
	return f.Apply(Delta{RemoveNodes: []NodeID{id}})
}

// Connect links two nodes, merging their networks.
func (f *Forest) Connect(a, b NodeID) Result {
	return f.Apply(Delta{Link: []Link{{A: a, B: b}}})
}

// Disconnect unlinks two nodes, splitting the network if needed.
func (f *Forest) Disconnect(a, b NodeID) Result {
	return f.Apply(Delta{Unlink: []Link{{A: a, B: b}}})
}

// Apply commits a delta and repartitions only the networks it touches.
// Edits that reference unknown nodes are ignored.
func (f *Forest) Apply(d Delta) Result {
	if d.Empty() {
		return Result{Released: map[NodeID]*gas.Mixture{}}
	}

	before := f.graph
	after := before.Clone()
	touched := make(map[NetworkID]bool)
	touch := func(id NodeID) {
		if nid, ok := f.nodeNet[id]; ok {
			touched[nid] = true
		}
	}

	for _, id := range d.RemoveNodes {
		if after.RemoveNode(id) {
			touch(id)
		}
	}
	var added []NodeID
	for _, n := range d.AddNodes {
		if after.AddNode(n) {
			added = append(added, n.ID)
		}
	}
	for _, l := range d.Unlink {
		if after.Unlink(l.A, l.B) {
			touch(l.A)
		}
	}
	for _, l := range d.Link {
		if after.Link(l.A, l.B) {
			touch(l.A)
			touch(l.B)
		}
	}

	if len(touched) == 0 && len(added) == 0 {
		f.graph = after
		return Result{Released: map[NodeID]*gas.Mixture{}}
	}

	old := make([]*Network, 0, len(touched))
	for nid := range touched {
		old = append(old, f.networks[nid])
	}

	f.version++
	res := Repartition(before, after, old, added, f.version, f.nextID)

	for _, nid := range res.Retired {
		if n, ok := f.networks[nid]; ok {
			for _, m := range n.Members {
				delete(f.nodeNet, m)
			}
			delete(f.networks, nid)
		}
	}
	for _, n := range res.Networks {
		f.networks[n.ID] = n
		for _, m := range n.Members {
			f.nodeNet[m] = n.ID
		}
	}
	f.graph = after
	return res
}

func (f *Forest) nextID() NetworkID {
	f.lastID++
	return f.lastID
}
