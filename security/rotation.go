package security

import (
	"fmt"
	"time"
)

// KeyRotationWindow bounds when a retired app key may still open credential
// secrets sealed before the rotation.
type KeyRotationWindow struct {
	NotBefore time.Time
	NotAfter  time.Time
}

// RetiredAt keeps a key usable for grace after it stopped being the active
// key. A non positive grace leaves the window open.
func RetiredAt(retiredAt time.Time, grace time.Duration) KeyRotationWindow {
	if grace <= 0 {
		return KeyRotationWindow{}
	}
	return KeyRotationWindow{NotAfter: retiredAt.UTC().Add(grace)}
}

func (w KeyRotationWindow) Validate() error {
	if !w.NotBefore.IsZero() && !w.NotAfter.IsZero() && w.NotAfter.Before(w.NotBefore) {
		return fmt.Errorf("security: rotation window ends before it starts")
	}
	return nil
}

func (w KeyRotationWindow) Allows(at time.Time) bool {
	ts := at.UTC()
	if !w.NotBefore.IsZero() && ts.Before(w.NotBefore.UTC()) {
		return false
	}
	if !w.NotAfter.IsZero() && ts.After(w.NotAfter.UTC()) {
		return false
	}
	return true
}
