package domain

// Outcome is the terminal state of a guard evaluation.
type Outcome string

const (
	OutcomeGranted Outcome = "granted"
	OutcomeDenied  Outcome = "denied"
)

// DenyReason explains a denied navigation and selects its redirect target.
type DenyReason string

const (
	DenyReasonNone                 DenyReason = ""
	DenyReasonUnauthenticated      DenyReason = "unauthenticated"
	DenyReasonTokenExpired         DenyReason = "token_expired"
	DenyReasonSessionExpired       DenyReason = "session_expired"
	DenyReasonAlreadyAuthenticated DenyReason = "already_authenticated"
	DenyReasonForbidden            DenyReason = "forbidden"
	DenyReasonGuardFailure         DenyReason = "guard_failure"
)

// Decision is the result of evaluating a navigation.
type Decision struct {
	Outcome       Outcome
	Reason        DenyReason
	Class         RouteClass
	Redirect      string
	Authenticated bool
	PrincipalID   string
	Role          Role
	// Superseded is set when a newer navigation of the same client finished first;
	// side effects of a superseded evaluation are skipped.
	Superseded bool
}

// Granted reports whether navigation may proceed.
func (d Decision) Granted() bool {
	return d.Outcome == OutcomeGranted
}
