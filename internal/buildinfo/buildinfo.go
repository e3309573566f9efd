// Package buildinfo carries version identifiers stamped in via -ldflags.
package buildinfo

import "runtime"

var (
	Version = "dev"
	Commit  = ""
	BuiltAt = ""
)

func Info() map[string]string {
	return map[string]string{
		"version": Version,
		"commit":  Commit,
		"builtAt": BuiltAt,
		"go":      runtime.Version(),
	}
}
