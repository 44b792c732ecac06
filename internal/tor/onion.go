package tor

import (
	"encoding/base32"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Onion address constants.
const (
	// OnionV3Length is the length of a v3 address without the ".onion" suffix.
	OnionV3Length = 56

	// OnionV3Version is the version byte of v3 addresses.
	OnionV3Version = 0x03

	// OnionSuffix is the top-level domain of onion services.
	OnionSuffix = ".onion"
)

var (
	onionV3Pattern = regexp.MustCompile(`^[a-z2-7]{56}\.onion$`)
	onionV2Pattern = regexp.MustCompile(`^[a-z2-7]{16}\.onion$`)
)

// checksumPrefix is hashed in front of the key when computing v3 checksums.
var checksumPrefix = []byte(".onion checksum")

// IsOnionHost reports whether host (with or without a port) is in the .onion TLD.
func IsOnionHost(host string) bool {
	host = strings.ToLower(host)
	if h, _, ok := strings.Cut(host, ":"); ok {
		host = h
	}
	return strings.HasSuffix(host, OnionSuffix)
}

// IsValidV3Address reports whether address is a v3 onion address with a
// valid checksum. Subdomains ("www.<addr>.onion") are accepted.
//
// A v3 address is base32(pubkey || checksum || version) where checksum is
// the first two bytes of SHA3-256(".onion checksum" || pubkey || version).
func IsValidV3Address(address string) bool {
	address = serviceName(strings.ToLower(address))
	if !onionV3Pattern.MatchString(address) {
		return false
	}

	decoded, err := base32.StdEncoding.DecodeString(strings.ToUpper(strings.TrimSuffix(address, OnionSuffix)))
	if err != nil || len(decoded) != 35 {
		return false
	}

	pubkey, checksum, version := decoded[:32], decoded[32:34], decoded[34]
	if version != OnionV3Version {
		return false
	}
	expected := computeV3Checksum(pubkey, version)
	return checksum[0] == expected[0] && checksum[1] == expected[1]
}

// serviceName strips subdomains, keeping the last label before .onion.
func serviceName(host string) string {
	labels := strings.Split(host, ".")
	if len(labels) <= 2 {
		return host
	}
	return strings.Join(labels[len(labels)-2:], ".")
}

func computeV3Checksum(pubkey []byte, version byte) []byte {
	data := make([]byte, 0, len(checksumPrefix)+len(pubkey)+1)
	data = append(data, checksumPrefix...)
	data = append(data, pubkey...)
	data = append(data, version)

	hash := sha3.Sum256(data)
	return hash[:2]
}

// ComputeV3AddressFromPublicKey returns the v3 onion address of a 32-byte
// ed25519 public key.
func ComputeV3AddressFromPublicKey(pubkey []byte) (string, error) {
	if len(pubkey) != 32 {
		return "", fmt.Errorf("%w: public key must be 32 bytes, got %d", ErrInvalidOnionAddress, len(pubkey))
	}

	data := make([]byte, 35)
	copy(data[:32], pubkey)
	copy(data[32:34], computeV3Checksum(pubkey, OnionV3Version))
	data[34] = OnionV3Version

	return strings.ToLower(base32.StdEncoding.EncodeToString(data)) + OnionSuffix, nil
}

// ValidateSeed checks the host of an onion seed URL. Seeds outside the
// .onion TLD are accepted as they are.
func ValidateSeed(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidOnionAddress, rawURL)
	}
	host := strings.ToLower(u.Hostname())
	if !IsOnionHost(host) {
		return nil
	}

	if IsValidV3Address(host) {
		return nil
	}
	if onionV2Pattern.MatchString(serviceName(host)) {
		return fmt.Errorf("%w: %s", ErrV2AddressDeprecated, host)
	}
	return fmt.Errorf("%w: %s", ErrInvalidOnionAddress, host)
}

// HasOnionSeed reports whether any seed is an onion URL.
func HasOnionSeed(seeds []string) bool {
	for _, seed := range seeds {
		if u, err := url.Parse(seed); err == nil && IsOnionHost(u.Hostname()) {
			return true
		}
	}
	return false
}
