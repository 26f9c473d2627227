package domain

import (
	"encoding/hex"
	"math"
	"net"
	"regexp"
	"strings"
)

// Domain names accept letters, digits, underscores and hyphens, joined by
// dots and terminated by a dot. RFC 1034 comparisons are case-insensitive.
var domainNameRegex = regexp.MustCompile(`^(?:[A-Za-z0-9_-]+\.)+$`)

const (
	// MinTTL is the smallest TTL accepted on input.
	MinTTL = 30
	// MaxTTL is the largest TTL accepted on input.
	MaxTTL = math.MaxInt32

	maxDomainNameLength = 255
)

// Supported DNSSEC algorithm and digest-type numbers for DS records.
var (
	supportedDSAlgorithms = map[int]bool{3: true, 5: true, 6: true, 7: true, 8: true, 10: true, 13: true, 14: true, 15: true, 16: true}
	supportedDigestTypes  = map[int]bool{1: true, 2: true, 3: true, 4: true}
)

// EnsureTrailingDot makes a domain name absolute.
func EnsureTrailingDot(name string) string {
	if strings.HasSuffix(name, ".") {
		return name
	}
	return name + "."
}

// IsReverseName reports whether a fully-qualified name sits under
// in-addr.arpa. or ip6.arpa.
func IsReverseName(name string) bool {
	lower := strings.ToLower(EnsureTrailingDot(name))
	return strings.HasSuffix(lower, "in-addr.arpa.") || strings.HasSuffix(lower, "ip6.arpa.")
}

// ValidateDomainName checks an absolute domain name for syntax and length.
func ValidateDomainName(name string) *ChangeError {
	if name == "" {
		err := NewChangeError(ErrMissingField, "Missing required domain name.")
		return &err
	}
	if len(name) > maxDomainNameLength {
		err := NewChangeError(ErrInvalidDomainName, "Invalid domain name: %q exceeds %d characters.", name, maxDomainNameLength)
		return &err
	}
	if !domainNameRegex.MatchString(name) {
		err := NewChangeError(ErrInvalidDomainName, "Invalid domain name: %q. Valid domain names are a series of labels joined by dots and terminated with a dot.", name)
		return &err
	}
	return nil
}

// ValidateTTL checks a TTL supplied on input.
func ValidateTTL(ttl int) *ChangeError {
	if ttl < MinTTL || ttl > MaxTTL {
		err := NewChangeError(ErrInvalidTTL, "Invalid TTL: %d. TTL must be between %d and %d.", ttl, MinTTL, MaxTTL)
		return &err
	}
	return nil
}

// ValidateRecordData validates the typed payload for the given record type
// and canonicalizes domain-name valued fields in place (absolutizing them).
// NS approval against the configured name-server allow list is the batch
// validator's concern; the codec only checks shape.
func ValidateRecordData(t RecordType, rec *RecordData) []ChangeError {
	if rec == nil {
		return []ChangeError{NewChangeError(ErrMissingField, "Missing record data for type %q.", string(t))}
	}

	var errs []ChangeError
	switch t {
	case TypeA:
		ip := net.ParseIP(rec.Address)
		if rec.Address == "" || ip == nil || ip.To4() == nil || !strings.Contains(rec.Address, ".") {
			errs = append(errs, NewChangeError(ErrInvalidIPv4, "Invalid IPv4 address: %q.", rec.Address))
		}
	case TypeAAAA:
		ip := net.ParseIP(rec.Address)
		if rec.Address == "" || ip == nil || ip.To4() != nil {
			errs = append(errs, NewChangeError(ErrInvalidIPv6, "Invalid IPv6 address: %q.", rec.Address))
		}
	case TypeCNAME:
		if rec.CName == "" {
			errs = append(errs, NewChangeError(ErrMissingField, "Missing required field cname."))
			break
		}
		if net.ParseIP(strings.TrimSuffix(rec.CName, ".")) != nil {
			errs = append(errs, NewChangeError(ErrInvalidCnameForIP, "Invalid CNAME: %q, valid CNAMEs can't be IP addresses.", rec.CName))
			break
		}
		if len(EnsureTrailingDot(rec.CName)) > maxDomainNameLength {
			errs = append(errs, NewChangeError(ErrCnameTooLong, "CNAME %q exceeds %d characters.", rec.CName, maxDomainNameLength))
			break
		}
		rec.CName = EnsureTrailingDot(rec.CName)
		if e := ValidateDomainName(rec.CName); e != nil {
			errs = append(errs, *e)
		}
	case TypePTR:
		if rec.PtrDName == "" {
			errs = append(errs, NewChangeError(ErrMissingField, "Missing required field ptrdname."))
			break
		}
		if len(EnsureTrailingDot(rec.PtrDName)) > maxDomainNameLength {
			errs = append(errs, NewChangeError(ErrPtrTooLong, "PTR target %q exceeds %d characters.", rec.PtrDName, maxDomainNameLength))
			break
		}
		rec.PtrDName = EnsureTrailingDot(rec.PtrDName)
		if e := ValidateDomainName(rec.PtrDName); e != nil {
			errs = append(errs, *e)
		}
	case TypeTXT:
		// Text of any length; backslashes and quotes pass through verbatim.
		if rec.Text == "" {
			errs = append(errs, NewChangeError(ErrMissingField, "Missing required field text."))
		}
	case TypeMX:
		if rec.Preference == nil {
			errs = append(errs, NewChangeError(ErrMissingField, "Missing required field preference."))
		} else if *rec.Preference < 0 || *rec.Preference > 65535 {
			errs = append(errs, NewChangeError(ErrMxPreferenceOutOfRange, "Invalid MX preference: %d. Preference must be between 0 and 65535.", *rec.Preference))
		}
		if rec.Exchange == "" {
			errs = append(errs, NewChangeError(ErrMissingField, "Missing required field exchange."))
		} else {
			rec.Exchange = EnsureTrailingDot(rec.Exchange)
			if e := ValidateDomainName(rec.Exchange); e != nil {
				errs = append(errs, *e)
			}
		}
	case TypeSRV:
		for _, f := range []struct {
			name string
			val  *int
		}{{"priority", rec.Priority}, {"weight", rec.Weight}, {"port", rec.Port}} {
			if f.val == nil {
				errs = append(errs, NewChangeError(ErrMissingField, "Missing required field %s.", f.name))
			} else if *f.val < 0 || *f.val > 65535 {
				errs = append(errs, NewChangeError(ErrInvalidRecordType, "Invalid SRV %s: %d (must be 0-65535).", f.name, *f.val))
			}
		}
		if rec.Target == "" {
			errs = append(errs, NewChangeError(ErrMissingField, "Missing required field target."))
		} else {
			rec.Target = EnsureTrailingDot(rec.Target)
			if e := ValidateDomainName(rec.Target); e != nil {
				errs = append(errs, *e)
			}
		}
	case TypeNAPTR:
		if rec.Order == nil {
			errs = append(errs, NewChangeError(ErrMissingField, "Missing required field order."))
		} else if *rec.Order < 0 || *rec.Order > 65535 {
			errs = append(errs, NewChangeError(ErrInvalidRecordType, "Invalid NAPTR order: %d (must be 0-65535).", *rec.Order))
		}
		if rec.Preference == nil {
			errs = append(errs, NewChangeError(ErrMissingField, "Missing required field preference."))
		} else if *rec.Preference < 0 || *rec.Preference > 65535 {
			errs = append(errs, NewChangeError(ErrInvalidRecordType, "Invalid NAPTR preference: %d (must be 0-65535).", *rec.Preference))
		}
		if rec.Replacement != "" {
			rec.Replacement = EnsureTrailingDot(rec.Replacement)
			if e := ValidateDomainName(rec.Replacement); e != nil {
				errs = append(errs, *e)
			}
		}
	case TypeDS:
		if rec.KeyTag == nil {
			errs = append(errs, NewChangeError(ErrMissingField, "Missing required field keytag."))
		} else if *rec.KeyTag < 0 || *rec.KeyTag > 65535 {
			errs = append(errs, NewChangeError(ErrInvalidRecordType, "Invalid DS keytag: %d (must be 0-65535).", *rec.KeyTag))
		}
		if rec.Algorithm == nil {
			errs = append(errs, NewChangeError(ErrMissingField, "Missing required field algorithm."))
		} else if !supportedDSAlgorithms[*rec.Algorithm] {
			errs = append(errs, NewChangeError(ErrUnknownAlgorithm, "Unsupported DNSSEC algorithm: %d.", *rec.Algorithm))
		}
		if rec.DigestType == nil {
			errs = append(errs, NewChangeError(ErrMissingField, "Missing required field digesttype."))
		} else if !supportedDigestTypes[*rec.DigestType] {
			errs = append(errs, NewChangeError(ErrUnknownDigestType, "Unsupported DS digest type: %d.", *rec.DigestType))
		}
		if rec.Digest == "" {
			errs = append(errs, NewChangeError(ErrMissingField, "Missing required field digest."))
		} else if _, err := hex.DecodeString(rec.Digest); err != nil {
			errs = append(errs, NewChangeError(ErrDigestNotHex, "DS digest %q is not valid hexadecimal.", rec.Digest))
		}
	case TypeNS:
		if rec.NSDName == "" {
			errs = append(errs, NewChangeError(ErrMissingField, "Missing required field nsdname."))
			break
		}
		rec.NSDName = EnsureTrailingDot(rec.NSDName)
		if e := ValidateDomainName(rec.NSDName); e != nil {
			errs = append(errs, *e)
		}
	default:
		errs = append(errs, NewChangeError(ErrInvalidRecordType, "Invalid record type: %q. Supported types are A, AAAA, CNAME, PTR, TXT, MX, SRV, NAPTR, DS and NS.", string(t)))
	}
	return errs
}
