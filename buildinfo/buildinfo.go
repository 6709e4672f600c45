// Package buildinfo holds the agent's identity and release metadata.
// Release builds stamp Version and Commit:
//
//	go build -ldflags "-X github.com/nedpals/umbral-nfc/buildinfo.Version=1.0.0"
package buildinfo

import (
	"fmt"
	"runtime"
	"strings"
)

var (
	Name        = "umbral-nfc"
	DisplayName = "Umbral NFC"
	Description = "NFC tag identity agent: register, recognize and track physical tags"

	// ServiceType is advertised over mDNS.
	ServiceType = "_umbral-nfc._tcp"

	Version   = "dev"
	Commit    = ""
	BuildTime = ""
)

// FullVersion is Version, suffixed with the short commit when stamped.
func FullVersion() string {
	if Commit == "" {
		return Version
	}
	return fmt.Sprintf("%s (%s)", Version, Commit)
}

// BuildInfo is the multi-line report printed by -version.
func BuildInfo() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n  %s\n", Name, FullVersion(), Description)
	fmt.Fprintf(&b, "  go %s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	if BuildTime != "" {
		fmt.Fprintf(&b, "\n  built %s", BuildTime)
	}
	return b.String()
}
