package main

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTagger_FireDoesNotBlock(t *testing.T) {
	release := make(chan struct{})
	var runs atomic.Int32
	tags := newTagger(2, func(int) {
		<-release
		runs.Add(1)
	})

	fired := make(chan struct{})
	go func() {
		tags.fire(0)
		tags.fire(0)
		tags.fire(1)
		close(fired)
	}()
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("fire waited for the tag to finish")
	}

	close(release)
	tags.close()
	assert.Equal(t, int32(2), runs.Load(), "each tag runs once")

	tags.fire(1)
	assert.Equal(t, int32(2), runs.Load())
}

func TestTagger_CloseRejectsNewTags(t *testing.T) {
	var runs atomic.Int32
	tags := newTagger(1, func(int) { runs.Add(1) })
	tags.close()
	tags.fire(0)
	tags.close()
	assert.Zero(t, runs.Load())
}
