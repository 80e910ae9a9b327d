package version

import "runtime/debug"

// Version is set by the build process
var Version string

// Get returns the release version when set, falling back to the VCS
// revision baked into the binary.
func Get() string {
	if Version != "" {
		return Version
	}

	release := "<unknown>"
	info, ok := debug.ReadBuildInfo()
	if ok {
		for _, kv := range info.Settings {
			if kv.Value == "" {
				continue
			}
			switch kv.Key {
			case "vcs.revision":
				release = kv.Value
			}
		}
	}
	return release
}
