// Package rules parses the classbench-style rule files used to build
// and test classifiers: one rule per line, a CIDR source and
// destination address, inclusive source and destination port ranges, a
// masked protocol, and an optional trailing priority. Unset fields
// default to "ANY", the same convention the teacher's own ACL-rule
// front end (packet.GetL3ACLFromORIG) uses for its whitespace-delimited
// rule lines.
package rules

import (
	"bufio"
	"io"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/theojepsen/nuevomatch/nmerror"
	"github.com/theojepsen/nuevomatch/nmtype"
)

// ParseFile opens path and parses it with Parse, mirroring the
// teacher's GetL3ACLFromORIG file-then-scan pattern.
func ParseFile(path string) ([]nmtype.Rule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nmerror.Wrap(err, nmerror.Load, "rules: open "+path)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads rule lines from r, in priority order: a rule's priority
// is its line number among non-comment lines unless the line supplies
// one explicitly, matching the teacher's line-order-is-priority
// convention for its ORIG rule format.
//
// Each line has the form:
//
//	srcCIDR dstCIDR sportLo:sportHi dportLo:dportHi proto/mask [priority]
//
// "ANY" is accepted for any field. Blank lines and lines starting with
// '#' are skipped.
func Parse(r io.Reader) ([]nmtype.Rule, error) {
	var out []nmtype.Rule
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lineNo++
		rule, err := parseLine(line, lineNo)
		if err != nil {
			return nil, nmerror.Wrap(err, nmerror.Load, "rules: parse line "+strconv.Itoa(lineNo))
		}
		out = append(out, rule)
	}
	if err := scanner.Err(); err != nil {
		return nil, nmerror.Wrap(err, nmerror.Load, "rules: read rule file")
	}
	return out, nil
}

func parseLine(line string, lineNo int) (nmtype.Rule, error) {
	fields := strings.Fields(line)
	if len(fields) != 5 && len(fields) != 6 {
		return nmtype.Rule{}, nmerror.Newf(nmerror.Load, "expected 5 or 6 fields, got %d", len(fields))
	}

	rule := nmtype.Rule{Priority: int32(lineNo)}
	if len(fields) == 6 {
		priority, err := strconv.ParseInt(fields[5], 10, 32)
		if err != nil {
			return nmtype.Rule{}, nmerror.Wrap(err, nmerror.Load, "invalid priority "+fields[5])
		}
		rule.Priority = int32(priority)
	}
	rule.Action = rule.Priority

	src, err := parseCIDR(fields[0])
	if err != nil {
		return nmtype.Rule{}, err
	}
	rule.Fields[nmtype.FieldSrc] = src

	dst, err := parseCIDR(fields[1])
	if err != nil {
		return nmtype.Rule{}, err
	}
	rule.Fields[nmtype.FieldDst] = dst

	sport, err := parsePortRange(fields[2])
	if err != nil {
		return nmtype.Rule{}, err
	}
	rule.Fields[nmtype.FieldSport] = sport

	dport, err := parsePortRange(fields[3])
	if err != nil {
		return nmtype.Rule{}, err
	}
	rule.Fields[nmtype.FieldDport] = dport

	proto, err := parseMaskedByte(fields[4])
	if err != nil {
		return nmtype.Rule{}, err
	}
	rule.Fields[nmtype.FieldProto] = proto

	// The classic 5-tuple carries no ToS field; it is always a wildcard
	// unless a richer rule file format adds one later.
	rule.Fields[nmtype.FieldTos] = nmtype.FieldRange{Low: 0, High: nmtype.NoFieldLimit}

	return rule, nil
}

func parseCIDR(s string) (nmtype.FieldRange, error) {
	if s == "ANY" || s == "*" {
		return nmtype.FieldRange{Low: 0, High: nmtype.NoFieldLimit}, nil
	}
	if !strings.Contains(s, "/") {
		s += "/32"
	}
	ip, ipnet, err := net.ParseCIDR(s)
	if err != nil {
		return nmtype.FieldRange{}, nmerror.Wrap(err, nmerror.Load, "invalid CIDR "+s)
	}
	v4 := ip.To4()
	if v4 == nil {
		return nmtype.FieldRange{}, nmerror.Newf(nmerror.Load, "only IPv4 addresses are supported: %s", s)
	}
	addr := toUint32(v4)
	mask := toUint32(net.IP(ipnet.Mask))
	low := addr & mask
	high := low | ^mask
	return nmtype.FieldRange{Low: low, High: high}, nil
}

func toUint32(ip net.IP) uint32 {
	return uint32(ip[0])<<24 | uint32(ip[1])<<16 | uint32(ip[2])<<8 | uint32(ip[3])
}

func parsePortRange(s string) (nmtype.FieldRange, error) {
	if s == "ANY" || s == "*" {
		return nmtype.FieldRange{Low: 0, High: 65535}, nil
	}
	lo, hi, found := strings.Cut(s, ":")
	if !found {
		lo, hi = s, s
	}
	low, err := strconv.ParseUint(strings.TrimSpace(lo), 10, 16)
	if err != nil {
		return nmtype.FieldRange{}, nmerror.Wrap(err, nmerror.Load, "invalid port "+lo)
	}
	high, err := strconv.ParseUint(strings.TrimSpace(hi), 10, 16)
	if err != nil {
		return nmtype.FieldRange{}, nmerror.Wrap(err, nmerror.Load, "invalid port "+hi)
	}
	if low > high {
		return nmtype.FieldRange{}, nmerror.Newf(nmerror.Load, "port range min > max: %s", s)
	}
	return nmtype.FieldRange{Low: uint32(low), High: uint32(high)}, nil
}

// parseMaskedByte parses a "value/mask" pair the way the teacher's
// rawL3Parse treats its L4 protocol ID: a full mask means an exact
// match, a zero mask means ANY, and the single-value form "value" is
// shorthand for an exact match.
func parseMaskedByte(s string) (nmtype.FieldRange, error) {
	if s == "ANY" || s == "*" {
		return nmtype.FieldRange{Low: 0, High: nmtype.NoFieldLimit}, nil
	}
	valueStr, maskStr, hasMask := strings.Cut(s, "/")
	value, err := strconv.ParseUint(strings.TrimPrefix(valueStr, "0x"), 16, 8)
	if err != nil {
		return nmtype.FieldRange{}, nmerror.Wrap(err, nmerror.Load, "invalid protocol value "+valueStr)
	}
	if !hasMask {
		return nmtype.FieldRange{Low: uint32(value), High: uint32(value)}, nil
	}
	mask, err := strconv.ParseUint(strings.TrimPrefix(maskStr, "0x"), 16, 8)
	if err != nil {
		return nmtype.FieldRange{}, nmerror.Wrap(err, nmerror.Load, "invalid protocol mask "+maskStr)
	}
	if mask == 0 {
		return nmtype.FieldRange{Low: 0, High: nmtype.NoFieldLimit}, nil
	}
	return nmtype.FieldRange{Low: uint32(value) & uint32(mask), High: uint32(value) & uint32(mask)}, nil
}
