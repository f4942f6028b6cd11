package models

import "github.com/golang-jwt/jwt/v5"

// UserRole represents the roles recognised by the scheduling service.
// Accounts themselves are owned by the external account service; only the
// role embedded in the access token matters here.
type UserRole string

const (
	RoleProvider UserRole = "PROVIDER"
	RoleConsumer UserRole = "CONSUMER"
	RoleAdmin    UserRole = "ADMIN"
)

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID string   `json:"user_id"`
	Role   UserRole `json:"role"`
	Email  string   `json:"email"`
	jwt.RegisteredClaims
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
