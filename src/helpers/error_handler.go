package helpers

import (
	"time"

	"multisig-observer/src/logger"

	"github.com/juju/clock"
	"golang.org/x/time/rate"
)

// -----------------------------------------------------------------------------
// Error Handler
// -----------------------------------------------------------------------------

// ErrorHandler logs errors, at most one per interval. An error is logged only
// once more than the interval has passed since the last logged one; errors
// inside the window are counted and mentioned with the next logged one.
type ErrorHandler struct {
	Logger     *logger.Logger
	ErrorCount int
	Suppressed int
	clock      clock.Clock
	limiter    *rate.Limiter
}

func NewErrorHandler(log *logger.Logger, clk clock.Clock, interval time.Duration) *ErrorHandler {
	if clk == nil {
		clk = clock.WallClock
	}
	return &ErrorHandler{
		Logger:  log,
		clock:   clk,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
	}
}

// -----------------------------------------------------------------------------

func (e *ErrorHandler) ResetErrorCount() {
	e.ErrorCount = 0
	e.Suppressed = 0
}

// -----------------------------------------------------------------------------

// Handle records err and reports whether it was logged.
func (e *ErrorHandler) Handle(err error, context string) bool {
	if err == nil {
		return false
	}
	e.ErrorCount++

	// The limiter admits at exactly one interval; asking a nanosecond early
	// keeps that boundary inside the window.
	if !e.limiter.AllowN(e.clock.Now().Add(-time.Nanosecond), 1) {
		e.Suppressed++
		return false
	}

	if e.Suppressed > 0 {
		e.Logger.Error("Error in %s: %v (%d similar errors suppressed)", context, err, e.Suppressed)
	} else {
		e.Logger.Error("Error in %s: %v", context, err)
	}
	e.Suppressed = 0
	return true
}
