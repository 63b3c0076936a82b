package main

import "strings"

// presenceState is the last committed presence of the automated account.
type presenceState int

const (
	presenceUnknown presenceState = iota
	presenceOnline
	presenceOffline
)

func (p presenceState) String() string {
	switch p {
	case presenceOnline:
		return "online"
	case presenceOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// nativePresence is the collaborator's reading of the account's own status,
// already narrowed to the three buckets the core cares about.
type nativePresence int

const (
	nativeOther nativePresence = iota
	nativeOnline
	nativeOffline
)

func (n nativePresence) String() string {
	switch n {
	case nativeOnline:
		return "online"
	case nativeOffline:
		return "offline"
	default:
		return "other"
	}
}

// classifyPresence maps a native reading onto a presence state. ok is false
// for readings that must not drive a transition.
func classifyPresence(n nativePresence) (presenceState, bool) {
	switch n {
	case nativeOnline:
		return presenceOnline, true
	case nativeOffline:
		return presenceOffline, true
	default:
		return presenceUnknown, false
	}
}

// displayName renders the name pushed to the network for a presence state.
// Unknown has no rendering and returns the trimmed base name.
func displayName(baseName string, p presenceState) string {
	baseName = strings.TrimSpace(baseName)
	switch p {
	case presenceOnline:
		return baseName + " ( Online )"
	case presenceOffline:
		return baseName + " ( Offline )"
	default:
		return baseName
	}
}
