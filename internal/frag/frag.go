// Package frag splits KISS payloads too large for one OFDM burst into
// fragments, and reassembles fragments back into whole payloads on the
// receive side, with a bounded number of in-flight reassemblies and a
// timeout so a lost final fragment can't leak memory forever.
package frag

import (
	"fmt"
	"time"
)

const (
	magic             byte = 0xF3
	headerLen              = 5
	flagFirst         byte = 0x02
	flagLast          byte = 0x01
	ReassemblyTimeout      = 30 * time.Second
	MaxPending             = 64
)

var ErrBadHeader = fmt.Errorf("frag: bad fragment header")

// Fragment is one header-plus-data piece of a (possibly) multi-fragment
// packet.
type Fragment struct {
	PacketID uint16
	Seq      byte
	First    bool
	Last     bool
	Data     []byte
}

// Split breaks payload into fragments of at most maxChunk bytes each,
// tagged with packetID so the receiver can group and order them.
func Split(payload []byte, packetID uint16, maxChunk int) []Fragment {
	if len(payload) == 0 {
		return []Fragment{{PacketID: packetID, Seq: 0, First: true, Last: true}}
	}
	var frags []Fragment
	for seq := 0; len(payload) > 0; seq++ {
		n := maxChunk
		if n > len(payload) {
			n = len(payload)
		}
		frags = append(frags, Fragment{
			PacketID: packetID,
			Seq:      byte(seq),
			First:    seq == 0,
			Last:     n == len(payload),
			Data:     append([]byte{}, payload[:n]...),
		})
		payload = payload[n:]
	}
	return frags
}

// Encode serializes a Fragment with its 5-byte header: magic,
// packet_id_hi, packet_id_lo, seq, flags.
func Encode(f Fragment) []byte {
	var flags byte
	if f.First {
		flags |= flagFirst
	}
	if f.Last {
		flags |= flagLast
	}
	out := make([]byte, headerLen+len(f.Data))
	out[0] = magic
	out[1] = byte(f.PacketID >> 8)
	out[2] = byte(f.PacketID)
	out[3] = f.Seq
	out[4] = flags
	copy(out[headerLen:], f.Data)
	return out
}

// Decode parses a framed fragment back out of a received payload.
func Decode(raw []byte) (Fragment, error) {
	if len(raw) < headerLen || raw[0] != magic {
		return Fragment{}, ErrBadHeader
	}
	flags := raw[4]
	return Fragment{
		PacketID: uint16(raw[1])<<8 | uint16(raw[2]),
		Seq:      raw[3],
		First:    flags&flagFirst != 0,
		Last:     flags&flagLast != 0,
		Data:     append([]byte{}, raw[headerLen:]...),
	}, nil
}

type pending struct {
	parts     map[byte][]byte
	lastSeen  time.Time
	sawLast   bool
	lastSeq   byte
}

// Reassembler tracks in-flight multi-fragment packets and emits a
// completed payload once every fragment from First through Last has
// arrived. It is not safe for concurrent use; callers serialize access
// through whatever single goroutine owns the receive path.
type Reassembler struct {
	inFlight map[uint16]*pending
	order    []uint16 // insertion order, for oldest-first eviction
	now      func() time.Time
}

func NewReassembler() *Reassembler {
	return &Reassembler{inFlight: make(map[uint16]*pending), now: time.Now}
}

// Add folds one fragment into its packet's reassembly state. It returns
// the reassembled payload and true once the packet is complete; the
// packet's state is dropped from tracking either way once complete.
func (r *Reassembler) Add(f Fragment) ([]byte, bool) {
	r.evictExpired()

	p, ok := r.inFlight[f.PacketID]
	if !ok {
		if len(r.inFlight) >= MaxPending {
			r.evictOldest()
		}
		p = &pending{parts: make(map[byte][]byte)}
		r.inFlight[f.PacketID] = p
		r.order = append(r.order, f.PacketID)
	}
	p.parts[f.Seq] = f.Data
	p.lastSeen = r.now()
	if f.Last {
		p.sawLast = true
		p.lastSeq = f.Seq
	}

	if !p.sawLast {
		return nil, false
	}
	for seq := byte(0); seq <= p.lastSeq; seq++ {
		if _, have := p.parts[seq]; !have {
			return nil, false
		}
	}

	var out []byte
	for seq := byte(0); seq <= p.lastSeq; seq++ {
		out = append(out, p.parts[seq]...)
	}
	delete(r.inFlight, f.PacketID)
	r.removeFromOrder(f.PacketID)
	return out, true
}

func (r *Reassembler) evictExpired() {
	cutoff := r.now().Add(-ReassemblyTimeout)
	for id, p := range r.inFlight {
		if p.lastSeen.Before(cutoff) {
			delete(r.inFlight, id)
			r.removeFromOrder(id)
		}
	}
}

func (r *Reassembler) evictOldest() {
	if len(r.order) == 0 {
		return
	}
	oldest := r.order[0]
	delete(r.inFlight, oldest)
	r.order = r.order[1:]
}

func (r *Reassembler) removeFromOrder(id uint16) {
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}

// Pending reports how many packets are currently mid-reassembly.
func (r *Reassembler) Pending() int { return len(r.inFlight) }
