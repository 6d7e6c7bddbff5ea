package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

const EnvFileName = "config.env"

// LoadEnvFile loads environment variables from a local .env file and from
// the config file in the user's config directory. Errors are ignored since
// neither file may exist.
func LoadEnvFile() {
	_ = godotenv.Load()

	configBase, err := os.UserConfigDir()
	if err != nil {
		return
	}
	_ = godotenv.Load(filepath.Join(configBase, AppName, EnvFileName))
}
