package source

import "fmt"

// Profile is the execution mode a preview is synthesized for. The host
// selects it; it is never inferred from the source.
type Profile string

const (
	ProfileMarkup    Profile = "plain-markup"
	ProfileScript    Profile = "vanilla-script"
	ProfileCanvas    Profile = "canvas-optimized"
	ProfileComponent Profile = "compiled-component"
)

// Profiles lists every profile in display order.
var Profiles = []Profile{ProfileMarkup, ProfileScript, ProfileCanvas, ProfileComponent}

// ParseProfile validates a profile name.
func ParseProfile(s string) (Profile, error) {
	p := Profile(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown runtime profile %q", s)
	}
	return p, nil
}

// Valid reports whether p is a known profile.
func (p Profile) Valid() bool {
	switch p {
	case ProfileMarkup, ProfileScript, ProfileCanvas, ProfileComponent:
		return true
	}
	return false
}

// RunsScript reports whether the plain script facet executes under p.
func (p Profile) RunsScript() bool {
	return p == ProfileScript || p == ProfileCanvas
}

func (p Profile) String() string { return string(p) }
