package auth

import "context"

type contextKey struct{}

// Principal is the authenticated user installed on the request context by
// the auth middleware. HouseholdID is 0 for unaffiliated users.
type Principal struct {
	UserID      int64
	Username    string
	HouseholdID int64
	Role        string
	Remember    bool
}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(Principal)
	return p, ok
}

// InHousehold reports whether the authenticated user belongs to the given
// household. Used by every household-scoped handler.
func InHousehold(ctx context.Context, householdID int64) bool {
	p, ok := FromContext(ctx)
	return ok && p.HouseholdID != 0 && p.HouseholdID == householdID
}

// IsOwner reports whether the authenticated user owns their household.
func IsOwner(ctx context.Context) bool {
	p, ok := FromContext(ctx)
	return ok && p.Role == "owner"
}
