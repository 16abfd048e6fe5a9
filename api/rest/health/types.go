package health

import "context"

const (
	serviceName = "docforge"
	version     = "1.0.0"
)

// a dependency that can report whether it is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

type Response struct {
	Status  string            `json:"status"`
	Service string            `json:"service"`
	Version string            `json:"version,omitempty"`
	Checks  map[string]string `json:"checks,omitempty"`
}

type PingResponse struct {
	Message string `json:"message"`
}
