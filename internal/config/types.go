// Package config loads milestone settings from ~/.milestone/config.json and
// ./.milestone/config.json. Per key, the project file wins over the global
// file, which wins over built-in defaults.
package config

const (
	SchemaVersion = 1

	DriverFile   = "file"
	DriverSQLite = "sqlite"

	DefaultDriver     = DriverFile
	DefaultFilePath   = ".milestone/store.json"
	DefaultSQLitePath = ".milestone/milestone.db"
	DefaultServerAddr = ":8080"
	DefaultLogLevel   = "info"
	DefaultLogFormat  = "text"
	DefaultRunType    = "initial"
)

type RawConfig struct {
	SchemaVersion *int         `json:"schemaVersion,omitempty"`
	Store         *RawStore    `json:"store,omitempty"`
	Server        *RawServer   `json:"server,omitempty"`
	Log           *RawLog      `json:"log,omitempty"`
	Schedule      *RawSchedule `json:"schedule,omitempty"`
}

type RawStore struct {
	Driver *string `json:"driver,omitempty"`
	Path   *string `json:"path,omitempty"`
}

type RawServer struct {
	Addr *string `json:"addr,omitempty"`
}

type RawLog struct {
	Level  *string `json:"level,omitempty"`
	Format *string `json:"format,omitempty"`
}

type RawSchedule struct {
	DefaultRunType *string `json:"defaultRunType,omitempty"`
}

type ResolvedConfig struct {
	SchemaVersion int              `json:"schemaVersion"`
	Store         ResolvedStore    `json:"store"`
	Server        ResolvedServer   `json:"server"`
	Log           ResolvedLog      `json:"log"`
	Schedule      ResolvedSchedule `json:"schedule"`
}

type ResolvedStore struct {
	Driver string `json:"driver"`
	Path   string `json:"path"`
}

type ResolvedServer struct {
	Addr string `json:"addr"`
}

type ResolvedLog struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

type ResolvedSchedule struct {
	DefaultRunType string `json:"defaultRunType"`
}

func DefaultResolvedConfig() ResolvedConfig {
	return ResolvedConfig{
		SchemaVersion: SchemaVersion,
		Store:         ResolvedStore{Driver: DefaultDriver, Path: DefaultFilePath},
		Server:        ResolvedServer{Addr: DefaultServerAddr},
		Log:           ResolvedLog{Level: DefaultLogLevel, Format: DefaultLogFormat},
		Schedule:      ResolvedSchedule{DefaultRunType: DefaultRunType},
	}
}

// DefaultPath returns the store path used when none is configured.
func DefaultPath(driver string) string {
	if driver == DriverSQLite {
		return DefaultSQLitePath
	}
	return DefaultFilePath
}
