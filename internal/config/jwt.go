package config

type JwtConfig struct {
	Secret string
}

func NewJwtConfig() *JwtConfig {
	return &JwtConfig{
		Secret: getEnv("JWT_SECRET", ""),
	}
}

// Enabled reports whether API auth is switched on. An empty secret leaves
// the management API open, which is the expected mode on a closed network.
func (c *JwtConfig) Enabled() bool {
	return c.Secret != ""
}
