// ABOUTME: Version information for beatgate binaries
// ABOUTME: Reported by the health endpoint, the mDNS TXT record and -version flags
package version

// Version is overridden at build time with -ldflags "-X .../internal/version.Version=..."
var Version = "0.1.0"

const (
	// Product is the name advertised to clients
	Product = "beatgate"

	// Manufacturer identifies the maintainer in discovery records
	Manufacturer = "Resonate Protocol"
)

// String renders "<product> <version>"
func String() string {
	return Product + " " + Version
}
