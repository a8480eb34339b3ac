package vkbackend

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestArenaReleasesInReverse(t *testing.T) {
	arena := newReleaseArena(nil)
	var order []string
	for _, name := range []string{"instance", "surface", "device", "swapchain"} {
		name := name
		arena.pushFunc(name, func() { order = append(order, name) })
	}
	assert.Equal(t, 4, arena.len())

	assert.NoError(t, arena.release())
	assert.Equal(t, []string{"swapchain", "device", "surface", "instance"}, order)
	assert.Zero(t, arena.len())
	assert.NoError(t, arena.release(), "a second release is a no-op")
}

func TestArenaKeepsGoingAfterFailures(t *testing.T) {
	var out bytes.Buffer
	arena := newReleaseArena(slog.New(slog.NewTextHandler(&out, nil)))
	var ran []string
	arena.pushFunc("first", func() { ran = append(ran, "first") })
	arena.push("broken", func() error { return errors.New("device lost") })
	arena.pushFunc("panicky", func() { panic(errors.New("double free")) })
	arena.pushFunc("last", func() { ran = append(ran, "last") })

	err := arena.release()
	assertMarked(t, err, ErrShutdownFailed)
	assert.Contains(t, err.Error(), "releasing panicky: double free", "the newest failure leads")
	assert.Equal(t, []string{"last", "first"}, ran)
	assert.Contains(t, out.String(), "step=panicky")
	assert.Contains(t, out.String(), "step=broken")
}
