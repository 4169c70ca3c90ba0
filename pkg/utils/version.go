// Package utils holds small helpers shared by the narrator commands and
// clients.
package utils

// Set at build time through -ldflags -X.
var (
	Version   = "dev"
	Sha       = "HEAD"
	Buildtime = "dev"
)

// UserAgent identifies narrator on outgoing HTTP requests.
func UserAgent() string {
	return "narrator/" + Version
}
