package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// AdminClaims are carried by tokens that may call the training endpoints.
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

const RoleAdmin = "admin"
