package classify

import (
	"net/netip"
	"strings"
)

// Family identifies the address family of a classified input.
type Family string

const (
	FamilyV4      Family = "v4"
	FamilyV6      Family = "v6"
	FamilyInvalid Family = "invalid"
)

// Classification is the result of classifying a raw address string.
// It is a pure function of the input, so callers may cache it keyed by
// the raw string.
type Classification struct {
	Address  string
	Valid    bool
	Family   Family
	Reserved bool
}

// block is a CIDR range stored as its network bytes plus prefix length.
type block struct {
	family Family
	net    []byte
	bits   int
}

// reservedBlocks lists special-purpose ranges that must never be sent to
// the external provider. Checked in table order.
var reservedBlocks = buildBlocks([]string{
	// IPv4
	"0.0.0.0/8",
	"10.0.0.0/8",
	"100.64.0.0/10",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"172.16.0.0/12",
	"192.0.0.0/24",
	"192.0.2.0/24",
	"192.88.99.0/24",
	"192.168.0.0/16",
	"198.18.0.0/15",
	"198.51.100.0/24",
	"203.0.113.0/24",
	"224.0.0.0/4",
	"240.0.0.0/4",
	"255.255.255.255/32",
	// IPv6
	"::/128",
	"::1/128",
	"::ffff:0:0/96",
	"64:ff9b::/96",
	"100::/64",
	"2001:db8::/32",
	"2002::/16",
	"fc00::/7",
	"fe80::/10",
	"ff00::/8",
})

func buildBlocks(cidrs []string) []block {
	blocks := make([]block, 0, len(cidrs))
	for _, c := range cidrs {
		prefix := netip.MustParsePrefix(c)
		fam := FamilyV6
		if prefix.Addr().Is4() {
			fam = FamilyV4
		}
		blocks = append(blocks, block{
			family: fam,
			net:    prefix.Addr().AsSlice(),
			bits:   prefix.Bits(),
		})
	}
	return blocks
}

// Classify validates the raw address, determines its family, and tests
// membership in the reserved ranges. It fails closed: anything that does
// not parse is reported invalid and reserved, so downstream code never
// issues an external query for unparsable input.
func Classify(address string) Classification {
	trimmed := strings.TrimSpace(address)
	if trimmed == "" {
		return Classification{Address: address, Family: FamilyInvalid, Reserved: true}
	}

	addr, err := netip.ParseAddr(trimmed)
	if err != nil {
		return Classification{Address: address, Family: FamilyInvalid, Reserved: true}
	}

	fam := FamilyV6
	if addr.Is4() {
		fam = FamilyV4
	}

	return Classification{
		Address:  trimmed,
		Valid:    true,
		Family:   fam,
		Reserved: isReserved(addr.AsSlice(), fam),
	}
}

func isReserved(candidate []byte, fam Family) bool {
	for _, b := range reservedBlocks {
		if b.family != fam {
			continue
		}
		if matches(candidate, b) {
			return true
		}
	}
	return false
}

// matches compares the leading b.bits bits of candidate against the block's
// network address. Full bytes are compared for equality; the trailing
// partial byte is masked before comparison.
func matches(candidate []byte, b block) bool {
	if len(candidate) != len(b.net) {
		return false
	}

	fullBytes := b.bits / 8
	for i := 0; i < fullBytes; i++ {
		if candidate[i] != b.net[i] {
			return false
		}
	}

	remaining := b.bits % 8
	if remaining == 0 {
		return true
	}

	mask := byte(0xFF << (8 - remaining))
	return candidate[fullBytes]&mask == b.net[fullBytes]&mask
}
