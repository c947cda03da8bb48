// SPDX-License-Identifier: MIT

package control

import (
	"sync/atomic"

	"github.com/kschult4/Halloween-2025/internal/command"
)

// Cell is a single-slot mailbox between the message listener and the
// render loop. Writers overwrite unconditionally, so a burst of commands
// collapses to the most recent one; the reader drains at most one command
// per frame.
type Cell struct {
	slot atomic.Pointer[command.Command]
}

// Put stores cmd, replacing any command not yet consumed.
func (c *Cell) Put(cmd command.Command) {
	c.slot.Store(&cmd)
}

// Take removes and returns the stored command, if any.
func (c *Cell) Take() (command.Command, bool) {
	p := c.slot.Swap(nil)
	if p == nil {
		return command.Command{}, false
	}
	return *p, true
}
