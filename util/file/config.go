package file

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v2"
)

var (
	ErrNotFound = eris.New("not found")
	ErrDecode   = eris.New("cannot decode yaml")
)

// Config is the application configuration read from config.yml.
type Config struct {
	CSeed              uint64 `yaml:"seed"`
	COutPath           string `yaml:"outPath"`
	CParallelism       int    `yaml:"parallelism"`
	CLogLevel          string `yaml:"logLevel"`
	CPrintLogToConsole bool   `yaml:"printLogToConsole"`
	CAuditLog          bool   `yaml:"auditLog"`
	CUseMetrics        bool   `yaml:"useMetrics"`
	CLibraryPath       string `yaml:"libraryPath"`
	CWatchdogSeconds   int    `yaml:"watchdogSeconds"`
	CMaxQueueLength    int    `yaml:"maxQueueLength"`
}

func DefaultConfig() *Config {
	return &Config{
		CSeed:              1,
		COutPath:           "out",
		CLogLevel:          "info",
		CPrintLogToConsole: true,
		CMaxQueueLength:    1 << 22,
	}
}

func (config *Config) Seed() uint64 {
	return config.CSeed
}

func (config *Config) OutPath() string {
	return config.COutPath
}

// Parallelism is the worker pool size, 0 means one worker per CPU.
func (config *Config) Parallelism() int {
	return config.CParallelism
}

func (config *Config) LogLevel() string {
	return config.CLogLevel
}

func (config *Config) PrintLogToConsole() bool {
	return config.CPrintLogToConsole
}

func (config *Config) AuditLog() bool {
	return config.CAuditLog
}

func (config *Config) UseMetrics() bool {
	return config.CUseMetrics
}

func (config *Config) LibraryPath() string {
	return config.CLibraryPath
}

func (config *Config) WatchdogSeconds() int {
	return config.CWatchdogSeconds
}

// MaxQueueLength bounds the pending events of one instance, 0 disables the bound.
func (config *Config) MaxQueueLength() int {
	return config.CMaxQueueLength
}

// LoadConfig reads path over the defaults. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()
	if !FileExists(path) {
		return config, nil
	}
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "reading %v", path)
	}
	if err := yaml.UnmarshalStrict(yamlFile, config); err != nil {
		return nil, eris.Wrapf(ErrDecode, "%v: %v", path, err)
	}
	return config, nil
}
