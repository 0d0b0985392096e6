package trigger

import "errors"

var (
	ErrUnknownKind         = errors.New("unknown trigger kind")
	ErrReplayNotSupported  = errors.New("replay not supported for trigger kind")
	ErrTransport           = errors.New("replay transport failed")
	ErrInvalidInvocation   = errors.New("invalid invocation")
	ErrFunctionNotFound    = errors.New("function not found")
	ErrNoPayload           = errors.New("invocation carries no payload for its trigger kind")
	ErrDuplicateRegistered = errors.New("trigger kind already registered")
)
