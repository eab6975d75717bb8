package config

import "strings"

// ResolveConfig merges project/global configs with built-in defaults.
// Precedence per key: project > global > defaults. Unknown enum values are
// skipped as if unset.
func ResolveConfig(project RawConfig, global RawConfig) ResolvedConfig {
	defaults := DefaultResolvedConfig()

	driver := resolveEnum(
		pick(project.Store, func(s RawStore) *string { return s.Driver }),
		pick(global.Store, func(s RawStore) *string { return s.Driver }),
		defaults.Store.Driver,
		DriverFile, DriverSQLite,
	)
	path := resolveString(
		pick(project.Store, func(s RawStore) *string { return s.Path }),
		pick(global.Store, func(s RawStore) *string { return s.Path }),
		DefaultPath(driver),
	)
	addr := resolveString(
		pick(project.Server, func(s RawServer) *string { return s.Addr }),
		pick(global.Server, func(s RawServer) *string { return s.Addr }),
		defaults.Server.Addr,
	)
	level := resolveEnum(
		pick(project.Log, func(l RawLog) *string { return l.Level }),
		pick(global.Log, func(l RawLog) *string { return l.Level }),
		defaults.Log.Level,
		"debug", "info", "warn", "error",
	)
	format := resolveEnum(
		pick(project.Log, func(l RawLog) *string { return l.Format }),
		pick(global.Log, func(l RawLog) *string { return l.Format }),
		defaults.Log.Format,
		"text", "json", "pretty",
	)
	runType := resolveEnum(
		pick(project.Schedule, func(s RawSchedule) *string { return s.DefaultRunType }),
		pick(global.Schedule, func(s RawSchedule) *string { return s.DefaultRunType }),
		defaults.Schedule.DefaultRunType,
		"initial", "rolling",
	)

	return ResolvedConfig{
		SchemaVersion: SchemaVersion,
		Store:         ResolvedStore{Driver: driver, Path: path},
		Server:        ResolvedServer{Addr: addr},
		Log:           ResolvedLog{Level: level, Format: format},
		Schedule:      ResolvedSchedule{DefaultRunType: runType},
	}
}

func pick[T any](section *T, field func(T) *string) *string {
	if section == nil {
		return nil
	}
	return field(*section)
}

func resolveString(projectVal *string, globalVal *string, defaultVal string) string {
	if value := normalizeString(projectVal); value != "" {
		return value
	}
	if value := normalizeString(globalVal); value != "" {
		return value
	}
	return defaultVal
}

func resolveEnum(projectVal *string, globalVal *string, defaultVal string, allowed ...string) string {
	for _, v := range []*string{projectVal, globalVal} {
		value := strings.ToLower(normalizeString(v))
		for _, a := range allowed {
			if value == a {
				return value
			}
		}
	}
	return defaultVal
}

func normalizeString(value *string) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(*value)
}
