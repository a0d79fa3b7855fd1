// Package ncp collects the small cross-cutting pieces (error kinds, console
// logging) shared by every other package in this module, the way
// except.hpp and log.hpp sit underneath the rest of the original tool.
package ncp

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Errors built with ConfigError, DirectiveErrorf,
// LayoutErrorf and LinkErrorf wrap one of these with fmt.Errorf("%w: ..."),
// so callers can classify those failures with errors.Is without parsing a
// message. I/O and parse failures wrapped only by Context carry no sentinel.
var (
	ErrConfig    = errors.New("configuration error")
	ErrDirective = errors.New("directive error")
	ErrLayout    = errors.New("layout error")
	ErrLink      = errors.New("link error")
)

// Context wraps err with a human-readable stage description, the way the
// original tool prefixed exceptions with "Failed to apply patches for ARM9
// target." before letting them propagate out of makeTarget.
func Context(ctx string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", ctx, err)
}

// ConfigError reports a malformed or missing build/rebuild configuration.
func ConfigError(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, a...))
}

// DirectiveErrorf reports a malformed ncp_* symbol or section name. Callers
// treat this kind as non-fatal: the offending patch is logged and dropped,
// mirroring gatherInfoFromObjects's per-symbol warning-and-continue loop.
func DirectiveErrorf(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrDirective, fmt.Sprintf(format, a...))
}

// LayoutErrorf reports a failure to place new code, an overlapping
// destination, or an out-of-range access against a binary.
func LayoutErrorf(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrLayout, fmt.Sprintf(format, a...))
}

// LinkErrorf reports an external linker invocation failure.
func LinkErrorf(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrLink, fmt.Sprintf(format, a...))
}
