package modulemanager

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// moduleFile is the optional module configuration, a flat disable list:
//
//	disabled:
//	  - system.import
type moduleFile struct {
	Disabled []string `yaml:"disabled"`
}

// loadDisabled reads the module config file named by
// DESIGNVAULT_MODULES_FILE (default designvault-modules.yml). A missing
// file means nothing is disabled.
func loadDisabled() (map[string]bool, error) {
	path := os.Getenv("DESIGNVAULT_MODULES_FILE")
	if path == "" {
		path = "designvault-modules.yml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var cfg moduleFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	set := make(map[string]bool, len(cfg.Disabled))
	for _, id := range cfg.Disabled {
		set[id] = true
	}
	return set, nil
}
