package core

import (
	"fmt"
	"os"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// overrideFile is the shape of an operator-pushed config override file: a
// flat key/value map onto the config table, restricted to the keys a
// deployment is actually expected to tune at runtime.
type overrideFile struct {
	HostnameCharset     *string `json:"hostname_charset"`
	DefaultLifetimeDays *int    `json:"default_lifetime_days"`
}

// WatchOverrideFile loads path once, applies it to the config table, then
// watches it with fsnotify and re-applies it on every write. This is how an
// operator changes hostname_charset or default_lifetime_days for a running
// engine without restarting it: the write lands in the config table, the
// version-bump trigger fires, and watchConfig's poll loop picks it up and
// notifies OnChange subscribers on its next tick.
func (e *Engine) WatchOverrideFile(path string) error {
	if err := e.applyOverrideFile(path); err != nil {
		return err
	}
	return e.WatchFile(path, func() {
		if err := e.applyOverrideFile(path); err != nil {
			log.Error().Err(err).Str("path", path).Msg("reload config override file")
		}
	})
}

func (e *Engine) applyOverrideFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read override file: %w", err)
	}

	var ov overrideFile
	if err := json.Unmarshal(data, &ov); err != nil {
		return fmt.Errorf("parse override file: %w", err)
	}

	if ov.HostnameCharset != nil {
		if err := e.SetConfig("hostname_charset", *ov.HostnameCharset); err != nil {
			return fmt.Errorf("apply hostname_charset override: %w", err)
		}
	}
	if ov.DefaultLifetimeDays != nil {
		if err := e.SetConfig("default_lifetime_days", fmt.Sprintf("%d", *ov.DefaultLifetimeDays)); err != nil {
			return fmt.Errorf("apply default_lifetime_days override: %w", err)
		}
	}

	log.Debug().Str("path", path).Msg("applied config override file")
	return nil
}
