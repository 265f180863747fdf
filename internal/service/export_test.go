package service

// Tracked exposes how many keys still hold per-key state.
func (a *Autosaver) Tracked() int { return a.tracked() }

// InFlight exposes how many demands have a transition generation recorded.
func (c *TransitionController) InFlight() int { return c.inFlight() }
