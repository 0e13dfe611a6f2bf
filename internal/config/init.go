package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

const defaultFile = `# adaptivehz
# Every key can also be set from the environment, e.g.
#   ADAPTIVEHZ_DEBOUNCE_IDLE_TIMEOUT=300ms

# package of the companion app; its own windows never boost
package: com.nzlov.adaptivehz
listen_addr: 127.0.0.1:8787
prefs_path: /data/local/tmp/adaptivehz/prefs.yaml
backlight_path: /sys/class/leds/lcd-backlight/brightness

debounce:
  idle_timeout: 3500ms

input:
  # empty captures every input device
  device: ""
  activity_poll: 1s

# pin the build identity instead of reading getprop
device:
  manufacturer: ""
  brand: ""

log:
  level: info
`

// InitFile writes a commented default config to path unless a file is
// already there.
func InitFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err == nil || !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(defaultFile), 0o644)
}
