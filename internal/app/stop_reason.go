package app

// StopReason records why the bot is shutting down. It only feeds logs.
type StopReason string

const (
	StopSignal     StopReason = "signal"
	StopFatalError StopReason = "fatal_error"
)
