// Package nmtype holds the value types shared by every stage of the
// classification pipeline: packet headers and batches, action outputs,
// and the rule representation consumed by iSets and the remainder
// classifier. None of these types know how to classify anything; they
// are pure data, the same way the teacher's types package carries
// only address/constant definitions for the packet package to use.
package nmtype

// BatchSize is the fixed SIMD-style grouping width used throughout the
// pipeline. The reference configuration runs with a single packet per
// batch; widening it only requires changing this constant, since every
// batch type below is sized against it.
const BatchSize = 1

// Supported L4 protocol numbers, reused from the IP protocol field
// values the original ACL rule files use to match TCP/UDP/ICMP.
const (
	ICMPNumber = 0x01
	TCPNumber  = 0x06
	UDPNumber  = 0x11
)

// NoMatch is the sentinel ActionOutput meaning "no rule matched".
var NoMatch = ActionOutput{Priority: -1, Action: -1}

// FieldCount is the number of header fields the fixed schema carries:
// src, dst, sport, dport, proto, tos.
const FieldCount = 6

// Field indices into a PacketHeader, matching the order the end-to-end
// scenarios in the specification use.
const (
	FieldSrc = iota
	FieldDst
	FieldSport
	FieldDport
	FieldProto
	FieldTos
)

// NoFieldLimit is returned by components reporting "no upper bound" on
// a field index, per the UINT_MAX sentinel convention.
const NoFieldLimit = ^uint32(0)

// PacketHeader is an ordered tuple of unsigned 32-bit field values,
// against the fixed schema above.
type PacketHeader [FieldCount]uint32

// Field extracts the value at fieldIndex, per the iSet's configured
// field-selector.
func (h *PacketHeader) Field(fieldIndex uint32) uint32 {
	return h[fieldIndex]
}

// PacketBatch is a fixed-width array of packet pointers; a nil slot is
// the sentinel for "no packet in this lane".
type PacketBatch [BatchSize]*PacketHeader

// ActionOutput pairs a rule's priority with its action. Smaller
// priority values rank higher; {-1,-1} means no match.
type ActionOutput struct {
	Priority int32
	Action   int32
}

// IsMatch reports whether this output represents a real rule match.
func (a ActionOutput) IsMatch() bool {
	return a.Priority >= 0
}

// Better reports whether a ranks strictly higher (lower priority
// value) than b. A non-match never beats a match.
func (a ActionOutput) Better(b ActionOutput) bool {
	if !a.IsMatch() {
		return false
	}
	if !b.IsMatch() {
		return true
	}
	return a.Priority < b.Priority
}

// ActionBatch is a fixed-width array of ActionOutput, one per lane of
// a PacketBatch.
type ActionBatch [BatchSize]ActionOutput

// NoMatchBatch returns a batch populated entirely with the no-match
// sentinel.
func NoMatchBatch() ActionBatch {
	var b ActionBatch
	for i := range b {
		b[i] = NoMatch
	}
	return b
}

// FieldRange is an inclusive [Low, High] bound on one header field.
type FieldRange struct {
	Low  uint32
	High uint32
}

// Match reports whether value falls within the range.
func (r FieldRange) Match(value uint32) bool {
	return value >= r.Low && value <= r.High
}

// Rule is a single classifier rule: a priority (lower ranks higher)
// and, for each of the fixed schema's fields, the range it must
// satisfy. A rule matches a header iff every field range matches.
type Rule struct {
	Priority int32
	Action   int32
	Fields   [FieldCount]FieldRange
}

// Matches reports whether header satisfies every field range of r.
func (r *Rule) Matches(h *PacketHeader) bool {
	for i := 0; i < FieldCount; i++ {
		if !r.Fields[i].Match(h[i]) {
			return false
		}
	}
	return true
}

// ActionOutput returns the ActionOutput this rule produces when matched.
func (r *Rule) ActionOutput() ActionOutput {
	return ActionOutput{Priority: r.Priority, Action: r.Action}
}
