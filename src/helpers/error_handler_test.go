package helpers

import (
	"testing"
	"time"

	"multisig-observer/src/logger"

	"github.com/juju/clock/testclock"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorHandlerRateLimits(t *testing.T) {
	clk := testclock.NewClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	h := NewErrorHandler(logger.NewLogger(nil, "ErrorHandlerTest"), clk, 10*time.Second)
	boom := errors.New("boom")

	assert.True(t, h.Handle(boom, "stream"))
	assert.False(t, h.Handle(boom, "stream"))
	assert.False(t, h.Handle(boom, "stream"))
	assert.Equal(t, 2, h.Suppressed)

	clk.Advance(9 * time.Second)
	assert.False(t, h.Handle(boom, "stream"))

	clk.Advance(time.Second)
	assert.False(t, h.Handle(boom, "stream"))

	clk.Advance(time.Millisecond)
	assert.True(t, h.Handle(boom, "stream"))
	assert.Equal(t, 0, h.Suppressed)
	assert.Equal(t, 6, h.ErrorCount)

	assert.False(t, h.Handle(nil, "stream"))
	h.ResetErrorCount()
	assert.Equal(t, 0, h.ErrorCount)
}
