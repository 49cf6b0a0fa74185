/*
Copyright © 2025 The Rboard Authors
*/
package types

// Slideshow modes accepted by RboardConfig.SlideshowMode.
const (
	SlideshowDisabled        = "Disabled"
	SlideshowSingleReport    = "SingleReport"
	SlideshowAllReports      = "AllReports"
	SlideshowFirstReports    = "FirstReports"
	SlideshowCategoryReports = "CategoryReports"
)

// AppConfig represents the complete application configuration
type AppConfig struct {
	Verbose bool                      `mapstructure:"verbose"`
	Config  string                    `mapstructure:"config"`
	Server  ServerConfig              `mapstructure:"server" validate:"required"`
	Rboard  RboardConfig              `mapstructure:"rboard" validate:"required"`
	R       RConfig                   `mapstructure:"r"`
	Reports map[string][]ReportConfig `mapstructure:"reports"`
	Journal JournalConfig             `mapstructure:"journal"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Port      int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	AssetsDir string `mapstructure:"assetsDir"`
}

// RboardConfig holds report storage and dashboard settings
type RboardConfig struct {
	ReportsDirectory  string `mapstructure:"reportsDirectory" validate:"required"`
	ArchivesDirectory string `mapstructure:"archivesDirectory" validate:"required"`
	SlideshowMode     string `mapstructure:"slideshowMode" validate:"omitempty,oneof=Disabled SingleReport AllReports FirstReports CategoryReports"`
	SlideshowTime     string `mapstructure:"slideshowTime"`
	// SweepInterval is how often the server rolls over and prunes every report
	SweepInterval string `mapstructure:"sweepInterval"`
}

// RConfig holds the renderer toolchain settings
type RConfig struct {
	RScriptExecutable string   `mapstructure:"rscriptExecutable"`
	PandocExecutable  string   `mapstructure:"pandocExecutable"`
	Packages          []string `mapstructure:"packages"`
}

// ReportConfig describes one configured report. Path and Url are exclusive;
// durations use the "<count> <unit>" form, e.g. "2 weeks".
type ReportConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Path        string `mapstructure:"path" validate:"required_without=Url,excluded_with=Url"`
	Url         string `mapstructure:"url" validate:"omitempty,url"`
	Author      string `mapstructure:"author"`
	RefreshTime string `mapstructure:"refreshTime"`
	ArchiveTime string `mapstructure:"archiveTime"`
	DeleteTime  string `mapstructure:"deleteTime"`
}

// JournalConfig holds generation history settings
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}
