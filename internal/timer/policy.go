package timer

import (
	"fmt"

	"crocker/internal/errcode"
)

// ReloadPolicy decides what happens to a running session when the schedule
// changes underneath it.
type ReloadPolicy string

const (
	// PolicyFinish lets the session run to completion untouched.
	PolicyFinish ReloadPolicy = "finish"
	// PolicyCancel cancels the session on any schedule change.
	PolicyCancel ReloadPolicy = "cancel"
	// PolicyRevalidate cancels the session only if its event is no longer
	// the current one.
	PolicyRevalidate ReloadPolicy = "revalidate"
)

func ParsePolicy(s string) (ReloadPolicy, error) {
	switch p := ReloadPolicy(s); p {
	case PolicyFinish, PolicyCancel, PolicyRevalidate:
		return p, nil
	case "":
		return PolicyFinish, nil
	}
	return "", errcode.New(errcode.InvalidConfig, "timer.policy", fmt.Sprintf("unknown session policy %q", s))
}
