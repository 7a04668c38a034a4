package confkit

import (
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/joho/godotenv"
)

var dotenvOnce sync.Once

// LoadDotenvOnce loads a .env file once per process. COINBOARD_ENV_FILE (or
// ENV_FILE) names it explicitly; otherwise .env in the project root is
// used. Existing variables win unless DOTENV_OVERLOAD=1. NO_DOTENV=1 skips.
func LoadDotenvOnce() {
	dotenvOnce.Do(loadDotenv)
}

func loadDotenv() {
	if os.Getenv("NO_DOTENV") == "1" {
		return
	}
	load := godotenv.Load
	if os.Getenv("DOTENV_OVERLOAD") == "1" {
		load = godotenv.Overload
	}

	for _, name := range []string{"COINBOARD_ENV_FILE", "ENV_FILE"} {
		if p := os.Getenv(name); p != "" {
			_ = load(p)
			return
		}
	}
	root, err := ProjectRoot()
	if err != nil {
		_ = load(".env")
		return
	}
	if p := filepath.Join(root, ".env"); fileExists(p) {
		_ = load(p)
	}
}

func sourceDir() string {
	if _, file, _, ok := runtime.Caller(0); ok {
		return filepath.Dir(file)
	}
	return ""
}
