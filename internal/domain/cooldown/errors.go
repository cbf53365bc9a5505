package cooldown

import "errors"

// ErrCoolingDown reports a detection rejected inside the cooldown window.
var ErrCoolingDown = errors.New("detection cooling down")
