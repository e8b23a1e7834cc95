// Package instance names the running process in logs and lock ownership.
package instance

import "os"

var envKeys = []string{"DORMSHIP_INSTANCE_ID", "DYNO", "K_REVISION"}

// GetID returns the first configured instance identifier, then the host
// name, then "local".
func GetID() string {
	for _, key := range envKeys {
		if id := os.Getenv(key); id != "" {
			return id
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
