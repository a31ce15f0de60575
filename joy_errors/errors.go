// Provides common joy error definitions.
package joy_errors

import "errors"

var (
	ErrInvalidSessionID    = errors.New("joy: invalid session id")
	ErrModelBinaryTooLarge = errors.New("joy: model binary too large")
	ErrInvalidModelBinary  = errors.New("joy: invalid model binary")
	ErrInvalidClockTable   = errors.New("joy: invalid clock table")
	ErrInvalidPatch        = errors.New("joy: invalid patch")
	ErrInvalidHex          = errors.New("joy: invalid hex")
	ErrUnsupportedShape    = errors.New("joy: unsupported diff shape")
	ErrApplyFailure        = errors.New("joy: patch apply failure")

	ErrInvalidPatchLog = errors.New("joy: invalid patch log")
	ErrDocumentUnknown = errors.New("joy: unknown document")
	ErrDocumentExists  = errors.New("joy: document already exists")
	ErrClosed          = errors.New("joy: no store open")
)
