package vkbackend

import (
	"log/slog"

	"github.com/cockroachdb/errors"
)

// releaseArena owns the cleanup of every handle created during bring-up.
// Each creation registers its release right after succeeding; release runs
// them newest first, so teardown is always the exact reverse of creation.
type releaseArena struct {
	log   *slog.Logger
	steps []releaseStep
}

type releaseStep struct {
	name string
	fn   func() error
}

func newReleaseArena(log *slog.Logger) *releaseArena {
	if log == nil {
		log = discardLogger()
	}
	return &releaseArena{log: log}
}

func (a *releaseArena) push(name string, fn func() error) {
	a.steps = append(a.steps, releaseStep{name: name, fn: fn})
}

// pushFunc registers a release that cannot fail.
func (a *releaseArena) pushFunc(name string, fn func()) {
	a.push(name, func() error {
		fn()
		return nil
	})
}

func (a *releaseArena) len() int {
	return len(a.steps)
}

// release runs every step. A failing or panicking step is logged and the
// remaining steps still run; the failures are combined into the result.
func (a *releaseArena) release() error {
	var result error
	for i := len(a.steps) - 1; i >= 0; i-- {
		step := a.steps[i]
		if err := runStep(step); err != nil {
			a.log.Error("release step failed", slog.String("step", step.name), slog.Any("error", err))
			result = errors.CombineErrors(result, errors.Wrapf(err, "releasing %s", step.name))
		} else {
			a.log.Debug("released", slog.String("step", step.name))
		}
	}
	a.steps = a.steps[:0]
	if result != nil {
		return errors.Mark(result, ErrShutdownFailed)
	}
	return nil
}

func runStep(step releaseStep) (err error) {
	defer checkErr(&err)
	return step.fn()
}
