package domain

// RouteClass is the category a navigation path falls into.
type RouteClass int

const (
	RouteClassPublic RouteClass = iota
	RouteClassAuthOnly
	RouteClassProtected
	RouteClassAdmin
)

func (c RouteClass) String() string {
	switch c {
	case RouteClassAuthOnly:
		return "auth_only"
	case RouteClassProtected:
		return "protected"
	case RouteClassAdmin:
		return "admin"
	default:
		return "public"
	}
}

// RouteTable is the static routing configuration consumed by the guard.
type RouteTable struct {
	Public    []string
	AuthOnly  []string
	Protected []string
	Admin     []string

	// Login receives unauthenticated visitors of protected routes.
	Login string
	// Landing receives authenticated visitors bounced from auth-only or admin routes.
	Landing string
	// SignedOut is the neutral route shown after sign-out.
	SignedOut string
}
