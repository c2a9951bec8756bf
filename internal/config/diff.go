package config

import "reflect"

// ConfigDiff describes what changed between two configs.
// Log level and routing rules are applied live; everything else is reported
// in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RulesChanged is set when router.rules_file points somewhere else.
	RulesChanged bool
	NewRulesFile string

	// RestartRequired names the top-level sections whose changes only take
	// effect after a restart.
	RestartRequired []string
}

// Changed reports whether anything differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.RulesChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Router.RulesFile != new.Router.RulesFile {
		d.RulesChanged = true
		d.NewRulesFile = new.Router.RulesFile
	}

	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""
	oldRouter, newRouter := old.Router, new.Router
	oldRouter.RulesFile, newRouter.RulesFile = "", ""

	sections := []struct {
		name     string
		old, new any
	}{
		{"server", oldServer, newServer},
		{"providers", old.Providers, new.Providers},
		{"mcp", old.MCP, new.MCP},
		{"credentials", old.Credentials, new.Credentials},
		{"index", old.Index, new.Index},
		{"router", oldRouter, newRouter},
		{"session", old.Session, new.Session},
		{"observe", old.Observe, new.Observe},
	}
	for _, s := range sections {
		if !reflect.DeepEqual(s.old, s.new) {
			d.RestartRequired = append(d.RestartRequired, s.name)
		}
	}
	return d
}
