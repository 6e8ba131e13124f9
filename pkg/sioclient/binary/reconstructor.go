// Package binary reassembles binary-carrying packets from their placeholder
// text frame and the attachment frames that follow it.
//
// The wire protocol sends attachments in placeholder index order on a single
// ordered stream, so the n-th attachment received (counting from zero) is
// taken to be attachment n. That ordering is a transport precondition and is
// not verified here.
package binary

import (
	"github.com/tsarna/sioclient/pkg/sioclient"
)

// step addresses one level of a payload: an index into an Array or a key of
// an Object.
type step struct {
	index int
	key   string
	isKey bool
}

type location struct {
	path []step
	num  int
}

type pending struct {
	packet    *sioclient.Packet
	root      sioclient.Array
	expected  int
	received  int
	locations []location
}

// Reconstructor holds at most one packet awaiting attachments. It is not safe
// for concurrent use; the owning client serializes access.
type Reconstructor struct {
	pending *pending
}

// NewReconstructor returns an idle Reconstructor.
func NewReconstructor() *Reconstructor {
	return &Reconstructor{}
}

// Pending reports whether a packet is waiting for attachments.
func (r *Reconstructor) Pending() bool {
	return r.pending != nil
}

// Expected returns the declared attachment count of the pending packet.
func (r *Reconstructor) Expected() int {
	if r.pending == nil {
		return 0
	}
	return r.pending.expected
}

// Received returns how many attachments the pending packet has received.
func (r *Reconstructor) Received() int {
	if r.pending == nil {
		return 0
	}
	return r.pending.received
}

// Reset discards any pending packet.
func (r *Reconstructor) Reset() {
	r.pending = nil
}

// Begin starts reconstructing packet, which declares expected attachments.
func (r *Reconstructor) Begin(packet *sioclient.Packet, expected int) error {
	if r.pending != nil {
		return sioclient.NewSequencingError(
			"binary packet header received while %d of %d attachments are outstanding",
			r.pending.expected-r.pending.received, r.pending.expected)
	}
	if expected <= 0 {
		return sioclient.NewSequencingError("binary packet declares %d attachments", expected)
	}

	root := sioclient.Array(packet.Data)
	var locations []location
	collect(root, nil, &locations)

	for _, loc := range locations {
		if loc.num < 0 || loc.num >= expected {
			return sioclient.NewSequencingError(
				"placeholder %d outside declared attachment count %d", loc.num, expected)
		}
	}

	r.pending = &pending{
		packet:    packet,
		root:      root,
		expected:  expected,
		locations: locations,
	}
	return nil
}

// AddAttachment substitutes data into every placeholder whose index equals
// the number of attachments received so far. It returns the resolved packet
// once all declared attachments have arrived, and nil before that.
func (r *Reconstructor) AddAttachment(data []byte) (*sioclient.Packet, error) {
	p := r.pending
	if p == nil {
		return nil, sioclient.NewSequencingError("binary frame received with no pending binary packet")
	}
	if p.received >= p.expected {
		r.pending = nil
		return nil, sioclient.NewSequencingError("more than %d attachments received", p.expected)
	}

	num := p.received
	for _, loc := range p.locations {
		if loc.num == num {
			// Each location gets its own copy so duplicates resolve independently.
			replace(p.root, loc.path, sioclient.Binary(append([]byte(nil), data...)))
		}
	}
	p.received++

	if p.received < p.expected {
		return nil, nil
	}

	r.pending = nil
	p.packet.Data = []sioclient.Data(p.root)
	return p.packet, nil
}

// collect records the path of every placeholder under d, depth first.
func collect(d sioclient.Data, path []step, out *[]location) {
	switch x := d.(type) {
	case sioclient.Placeholder:
		*out = append(*out, location{path: clonePath(path), num: x.Num})
	case sioclient.Array:
		for i, item := range x {
			collect(item, append(path, step{index: i}), out)
		}
	case sioclient.Object:
		for k, item := range x {
			collect(item, append(path, step{key: k, isKey: true}), out)
		}
	}
}

func clonePath(path []step) []step {
	out := make([]step, len(path))
	copy(out, path)
	return out
}

// replace stores value at path below root. Arrays and Objects share their
// backing storage, so assigning into the parent container updates the packet
// in place.
func replace(root sioclient.Data, path []step, value sioclient.Data) {
	if len(path) == 0 {
		return
	}

	parent := root
	for _, s := range path[:len(path)-1] {
		parent = child(parent, s)
		if parent == nil {
			return
		}
	}

	last := path[len(path)-1]
	switch c := parent.(type) {
	case sioclient.Array:
		if !last.isKey && last.index < len(c) {
			c[last.index] = value
		}
	case sioclient.Object:
		if last.isKey {
			c[last.key] = value
		}
	}
}

func child(d sioclient.Data, s step) sioclient.Data {
	switch c := d.(type) {
	case sioclient.Array:
		if !s.isKey && s.index < len(c) {
			return c[s.index]
		}
	case sioclient.Object:
		if s.isKey {
			return c[s.key]
		}
	}
	return nil
}
