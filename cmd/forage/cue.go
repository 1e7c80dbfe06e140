package main

import (
	"io"
	"sync"
)

// bellCue rings the terminal bell for a proximity alert.
type bellCue struct {
	mu      sync.Mutex
	w       io.Writer
	playing bool
}

func newBellCue(w io.Writer) *bellCue {
	return &bellCue{w: w}
}

func (c *bellCue) Play() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playing = true
	_, _ = io.WriteString(c.w, "\a")
}

func (c *bellCue) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playing = false
}
