package config

import "time"

type AppConfig struct {
	ListenAddr   string          `yaml:"listen_addr" env:"HALLIGAN_LISTEN_ADDR" env-default:"0.0.0.0:8080"`
	WorkbookPath string          `yaml:"workbook_path" env:"HALLIGAN_WORKBOOK_PATH" env-default:"data/fire_incident_db.xlsx"`
	DBDriver     string          `yaml:"db_driver" env:"HALLIGAN_DB_DRIVER" env-default:"sqlite"`
	DBURL        string          `yaml:"db_url" env:"HALLIGAN_DB_URL"`
	DBPath       string          `yaml:"db_path" env:"HALLIGAN_DB_PATH" env-default:"data/halligan.db"`
	SessionTTL   time.Duration   `yaml:"session_ttl" env:"HALLIGAN_SESSION_TTL" env-default:"3h"`
	Pepper       string          `yaml:"pepper" env:"HALLIGAN_PEPPER"`
	Autosave     AutosaveConfig  `yaml:"autosave"`
	Security     SecurityConfig  `yaml:"security"`
	Incidents    IncidentsConfig `yaml:"incidents"`
}

type AutosaveConfig struct {
	Enabled  bool   `yaml:"enabled" env:"HALLIGAN_AUTOSAVE_ENABLED" env-default:"true"`
	CronSpec string `yaml:"cron_spec" env:"HALLIGAN_AUTOSAVE_CRON" env-default:"@every 5m"`
}

type SecurityConfig struct {
	TrustedProxies []string `yaml:"trusted_proxies" env:"HALLIGAN_TRUSTED_PROXIES"`
	LoginBurst     int      `yaml:"login_burst" env:"HALLIGAN_LOGIN_BURST" env-default:"5"`
}

type IncidentsConfig struct {
	// DefaultRejectComment is written when a reviewer rejects without supplying one.
	DefaultRejectComment string `yaml:"default_reject_comment" env:"HALLIGAN_DEFAULT_REJECT_COMMENT" env-default:"Please revise."`
}

func (c *AppConfig) EffectiveSessionTTL() time.Duration {
	if c == nil || c.SessionTTL <= 0 {
		return 3 * time.Hour
	}
	return c.SessionTTL
}
