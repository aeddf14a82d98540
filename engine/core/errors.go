package core

import "github.com/cockroachdb/errors"

// Conditions callers are expected to match with errors.Is.
var (
	ErrSwapchainOutOfDate = errors.New("swapchain out of date")
	ErrPoolExhausted      = errors.New("descriptor pool exhausted")
	ErrUnknownTemplate    = errors.New("unknown material template")
	ErrNoSuitableDevice   = errors.New("no suitable physical device")
	ErrShaderMissing      = errors.New("shader binary missing")
	ErrShaderInvalid      = errors.New("shader binary invalid")
	ErrAssetLoad          = errors.New("asset load failed")
	ErrMissingLayer       = errors.New("required validation layer not available")
)

// Severity markers. An error carries at most one of them.
var (
	ErrFatalInit    = errors.New("fatal initialization error")
	ErrFatalRuntime = errors.New("fatal runtime error")
)

// FatalInit marks err as an initialization failure the process cannot recover from.
func FatalInit(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, ErrFatalInit)
}

// FatalRuntime marks err as a failure that aborts the frame loop.
func FatalRuntime(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, ErrFatalRuntime)
}

func IsFatal(err error) bool {
	return errors.Is(err, ErrFatalInit) || errors.Is(err, ErrFatalRuntime)
}

// IsRecoverable reports whether err is the one condition the frame loop retries.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrSwapchainOutOfDate) && !IsFatal(err)
}
