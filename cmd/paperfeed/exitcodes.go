package main

// Exit codes
const (
	ExitSuccess     = 0 // Success
	ExitError       = 1 // General error (invalid arguments, runtime failure)
	ExitConfigError = 2 // Configuration error (missing settings, unknown search)
	ExitDataError   = 3 // Data error (unreadable cache or ledger)
	ExitRemoteError = 4 // Remote service error (auth, network)
	ExitPartial     = 5 // Run finished but some papers failed
)
