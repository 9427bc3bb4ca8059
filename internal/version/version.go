package version

// Version information for the Omniscient Code Index
const (
	// Version is the current semantic version of oci. It doubles as the
	// cache format tag: manifest.json, state.bin, and bm25.bin all carry
	// it, and a mismatch on any of the three forces a full rebuild.
	Version = "0.3.0"

	// BuildDate is set during build time (use -ldflags)
	BuildDate = "development"

	// GitCommit is set during build time (use -ldflags)
	GitCommit = "unknown"
)

// Info returns version information as a string
func Info() string {
	return Version
}

// FullInfo returns detailed version information
func FullInfo() string {
	return "Omniscient Code Index " + Version + " (commit: " + GitCommit + ", built: " + BuildDate + ")"
}
