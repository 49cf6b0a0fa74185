// Package config provides the configuration defaults of Rboard and resolves
// where its data lives. All default values are defined here.
package config

// Server defaults
const (
	DefaultPort = 80
)

// Rboard defaults
const (
	DefaultReportsDirectory  = "."
	DefaultArchivesDirectory = "Archives"
	DefaultSlideshowMode     = "SingleReport"
	DefaultSlideshowTime     = "20 seconds"
	DefaultSweepInterval     = "1 hour"
)

// Renderer defaults
const (
	DefaultRScriptExecutable = "Rscript"
	DefaultPandocExecutable  = "pandoc"
)

// ConfigName is the base name of the configuration file, without extension.
const ConfigName = "appsettings"

// EnvPrefix prefixes every environment override, e.g. RBOARD_SERVER_PORT.
const EnvPrefix = "RBOARD"

// JournalFileName is the journal database inside the data directory.
const JournalFileName = "journal.db"

// Defaults returns every default keyed by its configuration key.
func Defaults() map[string]any {
	return map[string]any{
		"server.port":              DefaultPort,
		"rboard.reportsDirectory":  DefaultReportsDirectory,
		"rboard.archivesDirectory": DefaultArchivesDirectory,
		"rboard.slideshowMode":     DefaultSlideshowMode,
		"rboard.slideshowTime":     DefaultSlideshowTime,
		"rboard.sweepInterval":     DefaultSweepInterval,
		"r.rscriptExecutable":      DefaultRScriptExecutable,
		"r.pandocExecutable":       DefaultPandocExecutable,
		"journal.enabled":          true,
	}
}
