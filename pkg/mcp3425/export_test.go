package mcp3425

import "time"

// SetSleep replaces the delay function of d.
func SetSleep(d *Dev, f func(time.Duration)) {
	d.sleep = f
}
