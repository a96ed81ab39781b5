package identity

import (
	"encoding/hex"
	"os"
	"runtime"
	"strings"

	"github.com/zeebo/blake3"
)

// machineIDPath is read for a stable per-install fingerprint.
const machineIDPath = "/etc/machine-id"

// fingerprintLen is the number of hex characters kept from the digest.
const fingerprintLen = 8

// Platform holds the attributes a device id is derived from.
type Platform struct {
	OS        string
	Hostname  string
	Arch      string
	MachineID string
}

// DetectPlatform reads the attributes of the running host.
func DetectPlatform() Platform {
	hostname, _ := os.Hostname() //nolint:errcheck // empty hostname is handled by DeriveDeviceID

	var machineID string
	if b, err := os.ReadFile(machineIDPath); err == nil {
		machineID = strings.TrimSpace(string(b))
	}

	return Platform{
		OS:        runtime.GOOS,
		Hostname:  hostname,
		Arch:      runtime.GOARCH,
		MachineID: machineID,
	}
}

// DeriveDeviceID returns "<os>-<hostname>-<arch>-<fp8>". The fingerprint is
// the first 8 hex characters of a BLAKE3 digest over the machine id, or over
// the hostname when no machine id is available.
func DeriveDeviceID(p Platform) string {
	host := strings.ToLower(strings.TrimSpace(p.Hostname))
	host = strings.ReplaceAll(host, " ", "-")
	if host == "" {
		host = "unknown"
	}

	seed := p.MachineID
	if seed == "" {
		seed = host
	}
	sum := blake3.Sum256([]byte(seed))
	fp := hex.EncodeToString(sum[:])[:fingerprintLen]

	return strings.Join([]string{p.OS, host, p.Arch, fp}, "-")
}
