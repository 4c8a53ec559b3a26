// Package streamtree implements the dynamic stream-node tree and its
// reference-counted PID subscription protocol: producer/consumer nodes
// arranged so TS packets flow parent to children while PID subscriptions
// flow children to parent.
//
// The tree is single-threaded by design (see internal/runtime): every
// method here must be called from the one goroutine that owns the tree.
// Cross-goroutine work is handed in through internal/jobqueue instead of
// locking Node directly, mirroring astra-sm's own single-threaded main
// loop (core/mainloop.c), where background work can only reach the demux
// tree by queuing a job for the next loop iteration.
package streamtree

import (
	"fmt"
	"log"

	"github.com/plextuner/plex-tuner/internal/tspacket"
)

// OnTS is the packet sink callback. A Node without one cannot be attached as
// a child (spec: "A child with on_ts == NULL cannot be attached").
type OnTS func(pkt []byte)

// PIDHook is the join_pid/leave_pid policy slot: called with the PID whose
// reference count transitioned 0->1 (join) or 1->0 (leave).
type PIDHook func(pid uint16)

// Node is one stream module instance: an optional packet sink, a parent
// link, an ordered child list, and an 8192-entry PID reference count
// vector.
type Node struct {
	Name string // for logging only

	onTS     OnTS
	parent   *Node
	children []*Node
	pidRefs  [tspacket.MaxPID]uint32

	joinHook  PIDHook
	leaveHook PIDHook

	inited bool
}

// NewNode allocates and initializes a Node in one step — the common case.
// Equivalent to `var n Node; n.Init(name, onTS)`.
func NewNode(name string, onTS OnTS) *Node {
	n := &Node{}
	n.Init(name, onTS)
	return n
}

// Init initializes a zero-value Node. Calling Init twice on the same node is
// a programmer error (spec §7: "initializing an already-initialized node")
// and panics immediately rather than returning an error, since it indicates
// a contract violation, not a runtime condition.
func (n *Node) Init(name string, onTS OnTS) {
	if n.inited {
		panic(fmt.Sprintf("streamtree: node %q already initialized", name))
	}
	n.Name = name
	n.onTS = onTS
	n.inited = true
	n.joinHook = n.defaultJoinHook
	n.leaveHook = n.defaultLeaveHook
}

func (n *Node) defaultJoinHook(pid uint16) {
	if n.parent != nil {
		n.parent.Join(pid)
	}
}

func (n *Node) defaultLeaveHook(pid uint16) {
	if n.parent != nil {
		n.parent.Leave(pid)
	}
}

// SetHooks overrides the join_pid/leave_pid policy slots (demux_set). The
// channel module uses this to intercept PID requests rather than forward
// them upward automatically.
func (n *Node) SetHooks(join, leave PIDHook) {
	n.joinHook = join
	n.leaveHook = leave
}

// Parent returns the node's current parent, or nil if detached.
func (n *Node) Parent() *Node { return n.parent }

// Children returns the node's children in insertion (fan-out) order. The
// returned slice is owned by Node; callers must not mutate it.
func (n *Node) Children() []*Node { return n.children }

// HasSink reports whether the node has a packet sink installed.
func (n *Node) HasSink() bool { return n.onTS != nil }

func checkPIDRange(pid uint16) {
	if pid >= tspacket.MaxPID {
		panic(fmt.Sprintf("streamtree: pid %d out of range [0,%d)", pid, tspacket.MaxPID))
	}
}

// Join increments the reference count for pid (demux_join). On a 0->1
// transition it invokes the join hook exactly once.
func (n *Node) Join(pid uint16) {
	checkPIDRange(pid)
	n.pidRefs[pid]++
	if n.pidRefs[pid] == 1 && n.joinHook != nil {
		n.joinHook(pid)
	}
}

// Leave decrements the reference count for pid (demux_leave). Leaving a PID
// with a zero count is a recoverable error: it is logged and ignored, with
// no call to the leave hook (spec §3, §7).
func (n *Node) Leave(pid uint16) {
	checkPIDRange(pid)
	if n.pidRefs[pid] == 0 {
		log.Printf("streamtree: node %q leave on zero-ref pid=%d (ignored)", n.Name, pid)
		return
	}
	n.pidRefs[pid]--
	if n.pidRefs[pid] == 0 && n.leaveHook != nil {
		n.leaveHook(pid)
	}
}

// Check reports whether pid is currently referenced (demux_check).
func (n *Node) Check(pid uint16) bool {
	checkPIDRange(pid)
	return n.pidRefs[pid] > 0
}

// ForEachSubscribed calls fn once for every PID currently referenced
// (pidRefs[p] > 0), in ascending PID order. Used by stream_reload to drain a
// node's upstream subscriptions without the caller tracking them separately.
func (n *Node) ForEachSubscribed(fn func(pid uint16)) {
	for p := uint16(0); p < tspacket.MaxPID; p++ {
		if n.pidRefs[p] > 0 {
			fn(p)
		}
	}
}

// Send delivers pkt to every child in insertion order (packet fan-out, §4.D).
// Mutating the children list concurrently with Send is not supported; a
// child is free to change its own or its parent's PID subscriptions from
// within its own OnTS callback (spec §5).
func (n *Node) Send(pkt []byte) {
	for _, c := range n.children {
		if c.onTS != nil {
			c.onTS(pkt)
		}
	}
}

func (n *Node) removeChild(child *Node) {
	for i, c := range n.children {
		if c == child {
			n.children = append(n.children[:i], n.children[i+1:]...)
			return
		}
	}
}

// Attach re-parents child under parent (or detaches it, if parent is nil),
// preserving the multiset of outstanding PID joins across the move: the old
// parent sees one leave per outstanding unit before detachment, and the new
// parent sees one join per unit after attachment (spec §4.C).
//
// Attaching a child with no packet sink, or to an uninitialized parent, is a
// programmer error and panics rather than returning an error.
func Attach(parent, child *Node) {
	if !child.inited {
		panic("streamtree: attach: child not initialized")
	}
	if child.onTS == nil {
		panic(fmt.Sprintf("streamtree: attach: child %q has no packet sink", child.Name))
	}
	if parent != nil && !parent.inited {
		panic("streamtree: attach: parent not initialized")
	}

	var saved [tspacket.MaxPID]uint32
	copy(saved[:], child.pidRefs[:])

	for p := uint16(0); p < tspacket.MaxPID; p++ {
		for i := uint32(0); i < saved[p]; i++ {
			if child.leaveHook != nil {
				child.leaveHook(p)
			}
		}
	}

	if child.parent != nil {
		child.parent.removeChild(child)
		child.parent = nil
	}

	if parent != nil {
		child.parent = parent
		parent.children = append(parent.children, child)
	}

	for p := uint16(0); p < tspacket.MaxPID; p++ {
		for i := uint32(0); i < saved[p]; i++ {
			if child.joinHook != nil {
				child.joinHook(p)
			}
		}
	}
}

// Destroy tears down a node: every still-referenced PID is left (one
// leave_pid reaches the parent per PID, matching the single join_pid it
// originally received), the node detaches from its parent, and its children
// become detached roots (their parent pointer is cleared, not reassigned).
func Destroy(n *Node) {
	for p := uint16(0); p < tspacket.MaxPID; p++ {
		for n.Check(p) {
			n.Leave(p)
		}
	}
	if n.parent != nil {
		n.parent.removeChild(n)
		n.parent = nil
	}
	for _, c := range n.children {
		c.parent = nil
	}
	n.children = nil
}
