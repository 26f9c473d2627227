package services

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/poyrazK/batchdns/internal/core/domain"
	"github.com/poyrazK/batchdns/internal/core/ports"
)

// Discovery resolves an input name and record type to a target zone and a
// relative record name.
type Discovery struct {
	zones ports.ZoneCatalog
}

func NewDiscovery(zones ports.ZoneCatalog) *Discovery {
	return &Discovery{zones: zones}
}

// DiscoveryResult is a resolved zone plus the relative record name inside
// it. The apex is represented by a record name equal to the zone name.
type DiscoveryResult struct {
	Zone       *domain.Zone
	RecordName string
}

// Discover maps inputName and t to a zone. Forward types resolve by longest
// proper suffix in forward zones; PTR resolves IPv4 literals against
// classless then classful reverse zones and IPv6 literals against nibble
// zones.
func (d *Discovery) Discover(ctx context.Context, inputName string, t domain.RecordType) (*DiscoveryResult, *domain.ChangeError) {
	if t == domain.TypePTR {
		return d.discoverPTR(ctx, inputName)
	}
	return d.discoverForward(ctx, inputName, t)
}

func (d *Discovery) discoverForward(ctx context.Context, inputName string, t domain.RecordType) (*DiscoveryResult, *domain.ChangeError) {
	name := domain.EnsureTrailingDot(inputName)
	if domain.IsReverseName(name) {
		err := domain.NewChangeError(domain.ErrInvalidRecordTypeInReverseZone,
			"Invalid Record Type In Reverse Zone: record with name %q and type %q is not allowed in a reverse zone.", name, string(t))
		return nil, &err
	}

	// Trailing dot leaves an empty final label after Split.
	labels := strings.Split(name, ".")
	labels = labels[:len(labels)-1]
	for i := 0; i < len(labels); i++ {
		candidate := strings.Join(labels[i:], ".") + "."
		zone, err := d.zones.GetZoneByName(ctx, candidate)
		if err != nil {
			cerr := domain.NewChangeError(domain.ErrZoneDiscoveryFailed, "Zone lookup failed for %q: %v", candidate, err)
			return nil, &cerr
		}
		if zone == nil {
			continue
		}
		recordName := zone.Name
		if i > 0 {
			recordName = strings.Join(labels[:i], ".")
		}
		return &DiscoveryResult{Zone: zone, RecordName: recordName}, nil
	}

	cerr := domain.ZoneDiscoveryError(name)
	return nil, &cerr
}

func (d *Discovery) discoverPTR(ctx context.Context, inputName string) (*DiscoveryResult, *domain.ChangeError) {
	ip := net.ParseIP(strings.TrimSuffix(inputName, "."))
	if ip == nil {
		err := domain.NewChangeError(domain.ErrInvalidIPv4, "Invalid IP address %q for PTR record.", inputName)
		return nil, &err
	}
	if v4 := ip.To4(); v4 != nil {
		return d.discoverPTRv4(ctx, v4, inputName)
	}
	return d.discoverPTRv6(ctx, ip.To16(), inputName)
}

// Classless delegation zones are named <base>/<prefix>.<o3>.<o2>.<o1>.in-addr.arpa.
// and are searched most-specific first, before the classful /24 zone.
func (d *Discovery) discoverPTRv4(ctx context.Context, ip net.IP, inputName string) (*DiscoveryResult, *domain.ChangeError) {
	o1, o2, o3, o4 := int(ip[0]), int(ip[1]), int(ip[2]), int(ip[3])

	for prefix := 31; prefix >= 25; prefix-- {
		mask := net.CIDRMask(prefix, 32)
		base := int(ip.Mask(mask)[3])
		name := fmt.Sprintf("%d/%d.%d.%d.%d.in-addr.arpa.", base, prefix, o3, o2, o1)
		zone, err := d.zones.GetZoneByName(ctx, name)
		if err != nil {
			cerr := domain.NewChangeError(domain.ErrZoneDiscoveryFailed, "Zone lookup failed for %q: %v", name, err)
			return nil, &cerr
		}
		if zone != nil {
			return &DiscoveryResult{Zone: zone, RecordName: fmt.Sprintf("%d", o4)}, nil
		}
	}

	classful := fmt.Sprintf("%d.%d.%d.in-addr.arpa.", o3, o2, o1)
	zone, err := d.zones.GetZoneByName(ctx, classful)
	if err != nil {
		cerr := domain.NewChangeError(domain.ErrZoneDiscoveryFailed, "Zone lookup failed for %q: %v", classful, err)
		return nil, &cerr
	}
	if zone != nil {
		return &DiscoveryResult{Zone: zone, RecordName: fmt.Sprintf("%d", o4)}, nil
	}

	cerr := domain.ZoneDiscoveryError(inputName)
	return nil, &cerr
}

func (d *Discovery) discoverPTRv6(ctx context.Context, ip net.IP, inputName string) (*DiscoveryResult, *domain.ChangeError) {
	const hexDigits = "0123456789abcdef"

	// Reversed nibble labels, least significant first.
	nibbles := make([]string, 0, 32)
	for i := 15; i >= 0; i-- {
		b := ip[i]
		nibbles = append(nibbles, string(hexDigits[b&0xf]), string(hexDigits[b>>4]))
	}

	for i := 1; i < len(nibbles); i++ {
		candidate := strings.Join(nibbles[i:], ".") + ".ip6.arpa."
		zone, err := d.zones.GetZoneByName(ctx, candidate)
		if err != nil {
			cerr := domain.NewChangeError(domain.ErrZoneDiscoveryFailed, "Zone lookup failed for %q: %v", candidate, err)
			return nil, &cerr
		}
		if zone != nil {
			return &DiscoveryResult{Zone: zone, RecordName: strings.Join(nibbles[:i], ".")}, nil
		}
	}

	cerr := domain.ZoneDiscoveryError(inputName)
	return nil, &cerr
}
