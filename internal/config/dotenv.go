package config

import (
	"github.com/joho/godotenv"
)

// LoadDotEnv reads .env files into the environment.
// Existing env vars win; a missing file is returned as an error the caller may ignore.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}
