package catalog

import (
	"strconv"
	"strings"
)

// PlatformTraitPrefix prefixes platform tags in an upload's trait list.
const PlatformTraitPrefix = "p_"

// Digest is the checksum the storefront reports for an upload.
//
// The API is inconsistent about which field it fills: listings usually carry
// md5 while md5_hash is the one that matches the downloaded bytes. Both are
// kept; Hex wins when both are present.
type Digest struct {
	// Legacy is the "md5" field.
	Legacy string
	// Hex is the "md5_hash" field.
	Hex string
}

// IsZero reports whether neither representation is known.
func (d Digest) IsZero() bool {
	return d.Legacy == "" && d.Hex == ""
}

// Expected returns the preferred digest value.
func (d Digest) Expected() string {
	if d.Hex != "" {
		return d.Hex
	}
	return d.Legacy
}

// Matches reports whether sum equals either known representation.
func (d Digest) Matches(sum string) bool {
	sum = strings.TrimSpace(sum)
	if sum == "" {
		return false
	}
	return (d.Hex != "" && strings.EqualFold(d.Hex, sum)) ||
		(d.Legacy != "" && strings.EqualFold(d.Legacy, sum))
}

// FileVariant is one downloadable file of a title.
type FileVariant struct {
	ID          int64
	Filename    string
	DisplayName string
	Traits      []string
	Digest      Digest
}

// Name returns the filename, the display name, or the id, whichever is first
// non-empty. The result is not sanitized.
func (v FileVariant) Name() string {
	if v.Filename != "" {
		return v.Filename
	}
	if v.DisplayName != "" {
		return v.DisplayName
	}
	return strconv.FormatInt(v.ID, 10)
}

// SupportsPlatform reports whether the variant should be considered for the
// given platform filter. An empty filter or an untagged variant always passes.
func (v FileVariant) SupportsPlatform(platform string) bool {
	if platform == "" || len(v.Traits) == 0 {
		return true
	}
	want := PlatformTraitPrefix + platform
	for _, trait := range v.Traits {
		if trait == want {
			return true
		}
	}
	return false
}
