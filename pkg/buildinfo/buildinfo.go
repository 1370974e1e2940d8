package buildinfo

// Set at build time, e.g.
// go build -ldflags "-X github.com/gilby125/tripfinder/pkg/buildinfo.Version=v1.2.3 -X github.com/gilby125/tripfinder/pkg/buildinfo.Commit=$(git rev-parse --short HEAD) -X github.com/gilby125/tripfinder/pkg/buildinfo.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info is reported by /health and the MCP server handshake.
func Info() map[string]string {
	return map[string]string{
		"version": Version,
		"commit":  Commit,
		"date":    Date,
	}
}

// String renders the version for logs, e.g. "v1.2.3 (abc1234)".
func String() string {
	return Version + " (" + Commit + ")"
}
