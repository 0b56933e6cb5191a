package auth

// Tier is the closed set of identity tiers. Every gate switches on the tier
// rather than inspecting ad hoc flags.
type Tier int

const (
	// TierGuest is an unauthenticated session with read-only access and no
	// persisted user identifier.
	TierGuest Tier = iota
	// TierFree is an authenticated account without the premium entitlement.
	TierFree
	// TierPremium is an authenticated account with the premium entitlement.
	TierPremium
)

// String returns the wire name of the tier.
func (t Tier) String() string {
	switch t {
	case TierGuest:
		return "guest"
	case TierFree:
		return "free"
	case TierPremium:
		return "premium"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the tier as its wire name.
func (t Tier) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}
