package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Default returns the configuration used when no file exists yet.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			File:    LoggingFile{Enabled: true, Path: "logs/disparador.log"},
		},
		Auth:    AuthConfig{Dir: "auth"},
		Storage: StorageConfig{Path: "data/history.db"},
		Roster:  RosterConfig{Path: "contatos.xlsx"},
	}
}

const defaultYAML = `# Disparador de mensagens em massa.
logging:
  level: info
  console: true
  file:
    enabled: true
    path: logs/disparador.log

auth:
  dir: auth

storage:
  path: data/history.db

roster:
  path: contatos.xlsx

dispatch:
  # min_delay: 30s
  # max_delay: 2m
  # min_burst_pause: 5m
  # max_burst_pause: 10m
  # burst_size_min: 10
  # burst_size_max: 14
  probe:
    enabled: false

daily:
  # time: "09:00"
  # timezone: America/Sao_Paulo
`

// WriteDefault creates path with the commented default config. It refuses
// to overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config %s already exists", path)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(defaultYAML), 0o644)
}
