package config

// CoordinatorCfg groups the coordinator's listen addresses.
type CoordinatorCfg struct {
	TCPAddr  string
	HTTPAddr string
}

func NewCoordinatorCfg() *CoordinatorCfg {
	return &CoordinatorCfg{
		TCPAddr:  getEnv("COORDINATOR_TCP_ADDR", ":9000"),
		HTTPAddr: getEnv("COORDINATOR_HTTP_ADDR", ":8080"),
	}
}
