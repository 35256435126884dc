package bdd

import (
	"fmt"
	"net"
)

// DefaultIPBits is the variable-width dpverify initializes its kernel with:
// 128 bits of IPv6 destination address plus the 16 reserved high-order bits
// used to encode a source device id.
const DefaultIPBits = 144

// SrcDeviceBits is the width of the reserved source-device range, always
// the first SrcDeviceBits variables (x1..x16), disjoint from the
// destination-prefix range regardless of the chosen total width.
const SrcDeviceBits = 16

// ipBits returns the high-order `bits` bits of ip as a []bool, MSB first.
func ipBits(ip string, bits int) ([]bool, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return nil, fmt.Errorf("bdd: invalid IP %q", ip)
	}
	raw := parsed.To16()
	if raw == nil {
		return nil, fmt.Errorf("bdd: IP %q could not be widened to 16 bytes", ip)
	}
	if bits > len(raw)*8 {
		return nil, fmt.Errorf("bdd: requested %d bits from a %d-bit address", bits, len(raw)*8)
	}
	out := make([]bool, bits)
	for i := 0; i < bits; i++ {
		byteIdx := i / 8
		bitIdx := 7 - (i % 8)
		out[i] = raw[byteIdx]&(1<<uint(bitIdx)) != 0
	}
	return out, nil
}

// EncodePrefix builds the clause forcing the destination-prefix range of
// the variable set to the high-order prefixLen bits of ip. the
// destination-prefix range is the trailing prefixLen variables
// [N-prefixLen, N), encoded MSB-first so the most significant prefix bit
// maps to variable x_{N-prefixLen+1}.
func (k *Kernel) EncodePrefix(ip string, prefixLen int) (*Node, error) {
	if prefixLen == 0 {
		return k.trueNode, nil
	}
	bits, err := ipBits(ip, prefixLen)
	if err != nil {
		return nil, err
	}
	n := k.nvars
	clause := k.trueNode
	for i, bit := range bits {
		// i==0 is the most significant prefix bit -> x_{n-prefixLen+1}.
		v := n - prefixLen + 1 + i
		lit := k.Var(v)
		if !bit {
			lit = k.NotVar(v)
		}
		clause = k.And(clause, lit)
	}
	return clause, nil
}

// EncodeSrcDevice builds the clause forcing x1..x16 to the bits of id,
// MSB-first.
func (k *Kernel) EncodeSrcDevice(id uint16) *Node {
	clause := k.trueNode
	for i := 0; i < SrcDeviceBits; i++ {
		v := i + 1
		bit := id&(1<<uint(SrcDeviceBits-1-i)) != 0
		lit := k.Var(v)
		if !bit {
			lit = k.NotVar(v)
		}
		clause = k.And(clause, lit)
	}
	return clause
}
