package fixprice

import (
	"fmt"

	"github.com/jmylchreest/fixprice/internal/download"
	"github.com/jmylchreest/fixprice/internal/headers"
	"github.com/jmylchreest/fixprice/internal/pipeline"
	"github.com/jmylchreest/fixprice/internal/warmup"
	"github.com/jmylchreest/fixprice/pkg/session"
)

// Re-export errors for public API
var (
	ErrWarmup         = warmup.ErrWarmup
	ErrAlreadyRan     = warmup.ErrAlreadyRan
	ErrRetryExhausted = pipeline.ErrRetryExhausted
	ErrUnexpectedBody = pipeline.ErrUnexpectedBody
	ErrValidation     = headers.ErrValidation
	ErrTimeout        = session.ErrTimeout
	ErrClosed         = session.ErrClosed
	ErrTooLarge       = download.ErrTooLarge

	// ErrCityRequired is returned by calls that only make sense for a city.
	ErrCityRequired = fmt.Errorf("%w: city is required", ErrValidation)
)

// Re-export types for public API
type (
	WarmupError         = warmup.Error
	RetryExhaustedError = pipeline.RetryExhaustedError
	Response            = pipeline.Response
	Image               = download.Image
	Diagnostic          = warmup.Diagnostic
	WarmupResult        = warmup.Result
)
