package midea

// Action is the recovery step taken for a cloud error code.
type Action int

const (
	// ActionFail returns the error to the caller.
	ActionFail Action = iota
	// ActionIgnore logs the code and retries the request.
	ActionIgnore
	// ActionSessionRestart clears the session and logs in again.
	ActionSessionRestart
	// ActionFullRestart also re-resolves the login id.
	ActionFullRestart
	// ActionForcedRestart is a full restart with the forced, settling login.
	ActionForcedRestart
	// ActionDeviceOffline reports the appliance unreachable without retrying.
	ActionDeviceOffline
)

// Cloud error codes with a known recovery.
const (
	CodeAsyncReplyMissing = 3176
	CodeInvalidSession    = 3106
	CodeRestart           = 3144
	CodeValueIllegal      = 3004
	CodeSystemError       = 9999
	CodeDeviceOffline     = 3123
)

// String returns the action name used in logs and metrics.
func (a Action) String() string {
	switch a {
	case ActionIgnore:
		return "ignore"
	case ActionSessionRestart:
		return "session_restart"
	case ActionFullRestart:
		return "full_restart"
	case ActionForcedRestart:
		return "forced_restart"
	case ActionDeviceOffline:
		return "device_offline"
	default:
		return "fail"
	}
}

// Retryable reports whether the request is repeated after the action.
func (a Action) Retryable() bool {
	switch a {
	case ActionIgnore, ActionSessionRestart, ActionFullRestart, ActionForcedRestart:
		return true
	default:
		return false
	}
}

// RecoveryFor maps a cloud error code to its recovery action.
func RecoveryFor(code int) Action {
	switch code {
	case CodeAsyncReplyMissing:
		return ActionIgnore
	case CodeValueIllegal, CodeSystemError:
		return ActionSessionRestart
	case CodeRestart:
		return ActionFullRestart
	case CodeInvalidSession:
		return ActionForcedRestart
	case CodeDeviceOffline:
		return ActionDeviceOffline
	default:
		return ActionFail
	}
}
