package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// sessionFile is the on-disk shape of SESSION_CONFIG_FILE:
//
//	[session]
//	idle_timeout = "15m"
//	warning_lead = "2m"
type sessionFile struct {
	Session struct {
		IdleTimeout       string `toml:"idle_timeout"`
		WarningLead       string `toml:"warning_lead"`
		CountdownInterval string `toml:"countdown_interval"`
		SignOutTimeout    string `toml:"sign_out_timeout"`
		MaxSessionAge     string `toml:"max_session_age"`
		SweepInterval     string `toml:"sweep_interval"`
	} `toml:"session"`
}

// overlaySessionFile replaces the fields present in the TOML file, leaving the rest untouched
func overlaySessionFile(base Session, path string) (Session, error) {
	var f sessionFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return base, fmt.Errorf("failed to decode session config %s: %w", path, err)
	}

	fields := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"idle_timeout", f.Session.IdleTimeout, &base.IdleTimeout},
		{"warning_lead", f.Session.WarningLead, &base.WarningLead},
		{"countdown_interval", f.Session.CountdownInterval, &base.CountdownInterval},
		{"sign_out_timeout", f.Session.SignOutTimeout, &base.SignOutTimeout},
		{"max_session_age", f.Session.MaxSessionAge, &base.MaxSessionAge},
		{"sweep_interval", f.Session.SweepInterval, &base.SweepInterval},
	}
	for _, field := range fields {
		if field.value == "" {
			continue
		}
		d, err := time.ParseDuration(field.value)
		if err != nil {
			return base, fmt.Errorf("session.%s: %w", field.name, err)
		}
		*field.dst = d
	}
	return base, nil
}
