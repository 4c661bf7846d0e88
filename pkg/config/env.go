package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"

	"github.com/joho/godotenv"
)

// DotEnvFile is the env file read from the working directory.
const DotEnvFile = ".env"

// PlaceholderAPIKey is the key written by "yui init-config". It never counts
// as a configured key.
const PlaceholderAPIKey = "your_api_key_here"

// envAliases maps viper keys to the unprefixed variables of a .env file.
var envAliases = map[string][]string{
	"proxy.api_key":      {"OPENAI_API_KEY"},
	"proxy.upstream":     {"OPENAI_BASE_URL"},
	"proxy.cors_origins": {"CORS_ORIGINS"},
	"proxy.mode":         {"YUI_MODE"},
	"proxy.listen":       {listenEnv},
}

// listenEnv carries HOST and PORT joined into one address.
const listenEnv = "YUI_DOTENV_LISTEN"

// LoadDotEnv loads path (DotEnvFile when empty) into the process
// environment. Variables that are already set are never overridden. A
// missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = DotEnvFile
	}

	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}

	if addr := listenFromHostPort(os.Getenv("HOST"), os.Getenv("PORT")); addr != "" {
		if _, set := os.LookupEnv(listenEnv); !set {
			if err := os.Setenv(listenEnv, addr); err != nil {
				return fmt.Errorf("setting listen address: %w", err)
			}
		}
	}
	return nil
}

// listenFromHostPort joins HOST and PORT. A lone HOST keeps the default port.
func listenFromHostPort(host, port string) string {
	switch {
	case host == "" && port == "":
		return ""
	case port == "":
		_, defPort, _ := net.SplitHostPort(defaultProxyListen)
		port = defPort
	}
	return net.JoinHostPort(host, port)
}

// DotEnvTemplate is the .env file written by "yui init-config".
const DotEnvTemplate = `# yui configuration
# Upstream API (fallback/default source)
OPENAI_API_KEY=` + PlaceholderAPIKey + `
OPENAI_BASE_URL=http://127.0.0.1:8000/v1

# Server
HOST=0.0.0.0
PORT=8001

# CORS (comma-separated origins)
CORS_ORIGINS=http://localhost:5173,http://localhost:8001

# Application mode (production or development)
# This is usually set by the serve command
# YUI_MODE=production
`

// WriteDotEnvTemplate writes DotEnvTemplate to path. An existing file is
// only replaced when force is set.
func WriteDotEnvTemplate(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	if err := os.WriteFile(path, []byte(DotEnvTemplate), 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
