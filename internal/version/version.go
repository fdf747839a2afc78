package version

// Version is the current version of the decode CLI.
// This value can be overridden at build time using:
//   go build -ldflags="-X 'github.com/calebmer/decode-universe-sub001/internal/version.Version=v1.0.0'"
var Version = "dev"
