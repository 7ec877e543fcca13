package instance

import (
	"os"

	"github.com/angelmondragon/stockroom-backend/pkg/env"
)

// GetID identifies the running process in logs. Explicit ids win over the
// platform dyno name, which wins over the hostname.
func GetID() string {
	if id := env.First("STOCKROOM_INSTANCE_ID", "DYNO"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
