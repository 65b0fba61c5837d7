package auth

import "github.com/golang-jwt/jwt/v5"

// PraxisClaims defines the unified JWT claims structure for praxis services.
// It embeds jwt.RegisteredClaims for standard fields (exp, iat, etc.) and adds
// praxis-specific fields for practitioner identity and tenant scoping.
type PraxisClaims struct {
	jwt.RegisteredClaims
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	TenantID string `json:"tenant_id,omitempty"`
	Email    string `json:"email,omitempty"`
}
