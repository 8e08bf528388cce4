package config

type AppConfig struct {
	DebugMode      bool
	PoolCfg        *PoolCfg
	CoordinatorCfg *CoordinatorCfg
	WorkerCfg      *WorkerCfg
	RedisConfig    *RedisConfig
	PostgresConfig *PostgresConfig
	JwtConfig      *JwtConfig
}

func NewSystemConfig() *AppConfig {
	return &AppConfig{
		DebugMode:      getEnv("DEBUG_MODE", "") == "true",
		PoolCfg:        NewPoolCfg(),
		CoordinatorCfg: NewCoordinatorCfg(),
		WorkerCfg:      NewWorkerCfg(),
		RedisConfig:    NewRedisConfig(),
		PostgresConfig: NewPostgresConfig(),
		JwtConfig:      NewJwtConfig(),
	}
}
