package version

import (
	"runtime/debug"
)

func Get() string {
	bi, ok := debug.ReadBuildInfo()
	if ok {
		for _, s := range bi.Settings {
			if s.Key == "vcs.revision" {
				return s.Value
			}
		}
	}

	return "unavailable"
}
