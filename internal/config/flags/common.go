// Package flags holds small shared *flag.FlagSet builders, the same
// shape this codebase's CLI tooling uses to keep flag definitions
// consistent across commands.
package flags

import "flag"

// AddPortFlag adds --port for the server's listen port.
func AddPortFlag(fs *flag.FlagSet, defaultPort int) *int {
	return fs.Int("port", defaultPort, "listen port")
}
