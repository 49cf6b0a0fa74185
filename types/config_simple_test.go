package types

import (
	"testing"

	"github.com/go-playground/validator/v10"
)

func validConfig() AppConfig {
	return AppConfig{
		Server: ServerConfig{Port: 80},
		Rboard: RboardConfig{
			ReportsDirectory:  "/srv/reports",
			ArchivesDirectory: "/srv/reports/Archives",
			SlideshowMode:     SlideshowSingleReport,
		},
		Reports: map[string][]ReportConfig{
			"Sales": {
				{Name: "Weekly Sales", Path: "sales/weekly.Rmd", RefreshTime: "1 hour"},
				{Name: "Dashboard", Url: "https://example.com/dashboard"},
			},
		},
	}
}

func TestAppConfig_Valid(t *testing.T) {
	config := validConfig()
	if err := validator.New().Struct(config); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestAppConfig_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AppConfig)
	}{
		{"port out of range", func(c *AppConfig) { c.Server.Port = 70000 }},
		{"unknown slideshow mode", func(c *AppConfig) { c.Rboard.SlideshowMode = "Carousel" }},
		{"missing reports directory", func(c *AppConfig) { c.Rboard.ReportsDirectory = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.mutate(&config)
			if err := validator.New().Struct(config); err == nil {
				t.Errorf("expected validation error")
			}
		})
	}
}

func TestReportConfig_PathOrUrl(t *testing.T) {
	v := validator.New()

	if err := v.Struct(ReportConfig{Name: "Empty"}); err == nil {
		t.Error("report without path or url should be rejected")
	}
	if err := v.Struct(ReportConfig{Name: "Both", Path: "a.Rmd", Url: "https://example.com"}); err == nil {
		t.Error("report with both path and url should be rejected")
	}
	if err := v.Struct(ReportConfig{Name: "Bad", Url: "not a url"}); err == nil {
		t.Error("report with malformed url should be rejected")
	}
	if err := v.Struct(ReportConfig{Name: "Ok", Path: "a.Rmd"}); err != nil {
		t.Errorf("report with path rejected: %v", err)
	}
}
