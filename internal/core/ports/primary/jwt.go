package primary

// TokenService signs and verifies the bearer tokens guarding the
// management API.
type TokenService interface {
	GenerateToken(subject string) (string, error)
	VerifyToken(token string) (bool, error)
}
