// Package buildinfo carries version metadata stamped at link time:
//
//	go build -ldflags "-X github.com/varsilias/chatbot/internal/buildinfo.Version=v1.2.0"
package buildinfo

var (
	Version = "dev"
	Commit  = "none"
	BuiltAt = "unknown"
)
