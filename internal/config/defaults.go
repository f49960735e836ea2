package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.AskRateLimit > 0 && cfg.Server.AskBurst == 0 {
		cfg.Server.AskBurst = int(cfg.Server.AskRateLimit*2) + 1
	}
	if cfg.Dataset.Source == "" {
		cfg.Dataset.Source = SourceFile
	}
	if cfg.Dataset.Source == SourceFile && cfg.Dataset.Path == "" {
		cfg.Dataset.Path = "./qadatav2.xlsx"
	}
	cols := &cfg.Dataset.Columns
	if cols.Question == "" {
		cols.Question = "Description_Clean"
	}
	if cols.Answer == "" {
		cols.Answer = "Responses_Clean"
	}
	if cols.CustomerID == "" {
		cols.CustomerID = "Customer_id"
	}
	if cols.County == "" {
		cols.County = "County"
	}
	if cols.About == "" {
		cols.About = "About"
	}
	if cols.Category == "" {
		cols.Category = "Category"
	}
	if cols.Response == "" {
		cols.Response = "Response"
	}
	if cfg.Matcher.DefaultLimit == 0 {
		cfg.Matcher.DefaultLimit = 1
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/kilimo/data/kilimo.db"
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 400 * time.Millisecond
	}
}
