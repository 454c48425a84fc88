package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/joseph-ayodele/docflow/internal/common"
	"github.com/joseph-ayodele/docflow/internal/events"
)

type countingRefresher struct{ n int }

func (c *countingRefresher) Refresh() { c.n++ }

func TestRefreshAfterSave(t *testing.T) {
	r := &countingRefresher{}
	bus := events.NewBus(nil)
	unsubscribe := bus.Subscribe(refreshAfterSave(r))

	bus.Publish(events.SaveFailed{Err: errors.New("boom")})
	assert.Equal(t, 0, r.n)

	bus.Publish(events.SaveCompleted{Silent: true})
	bus.Publish(events.SaveCompleted{})
	assert.Equal(t, 2, r.n)

	unsubscribe()
	bus.Publish(events.SaveCompleted{})
	assert.Equal(t, 2, r.n)
}

func TestExitCode(t *testing.T) {
	apiErr := func(code int) error {
		return fmt.Errorf("step: %w", &common.APIError{Op: "split_next", StatusCode: code})
	}
	assert.Equal(t, 2, exitCode(common.InputError("bad file")))
	assert.Equal(t, 2, exitCode(apiErr(http.StatusUnprocessableEntity)))
	assert.Equal(t, 3, exitCode(apiErr(http.StatusNotFound)))
	assert.Equal(t, 3, exitCode(common.NewAppError("JOB_EXPIRED", "expired", apiErr(http.StatusNotFound))))
	assert.Equal(t, 4, exitCode(apiErr(http.StatusServiceUnavailable)))
	assert.Equal(t, 4, exitCode(apiErr(http.StatusTooManyRequests)))
	assert.Equal(t, 4, exitCode(fmt.Errorf("save: %w", context.DeadlineExceeded)))
	assert.Equal(t, 1, exitCode(apiErr(http.StatusInternalServerError)))
	assert.Equal(t, 1, exitCode(errors.New("disk full")))
}
