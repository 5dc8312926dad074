// Package version carries the build identity stamped into the binary. The
// Version value here is the build's own label; the version advertised in
// the peer handshake comes from network config and may differ.
package version

import "runtime"

// Set at build time:
//
//	go build -ldflags "-X github.com/veltarosnet/veltaros/pkg/version.Version=1.0.0 \
//	  -X github.com/veltarosnet/veltaros/pkg/version.Commit=$(git rev-parse --short HEAD)"
var (
	Version = "1.0.0"
	Commit  = "dev"
)

// Info is the build identity as reported by the CLI; /api/peers/version
// reports its Commit as the build.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

// Get snapshots the running build's identity.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}
