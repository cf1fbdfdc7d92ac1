package version

// version is overridden at build time with -ldflags "-X agrichain/pkg/version.version=...".
var version = "dev"

// Version reports the build version printed by the version command.
func Version() string {
	return version
}
