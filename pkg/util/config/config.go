package config

import (
	"log"
	"os"
	"sync"

	"github.com/Jeffail/gabs"
	"github.com/pkg/errors"
)

const configFile = "config.json"

var (
	config *gabs.Container
	mu     sync.RWMutex
)

// Get returns config data with the given path.
// Config data is only allowed in string type. Returns an empty string
// if the path does not exist or the config file is not loaded.
func Get(path string) string {
	mu.RLock()
	defer mu.RUnlock()

	if config == nil {
		return ""
	}

	s, ok := config.Path(path).Data().(string)
	if !ok {
		return ""
	}
	return s
}

// Load reads the config file of the given path.
func Load(file string) error {
	json, err := gabs.ParseJSONFile(file)
	if err != nil {
		return errors.Wrapf(err, "failed to parse config file %s", file)
	}

	mu.Lock()
	config = json
	mu.Unlock()
	return nil
}

// LoadBytes reads the config from the given json bytes.
func LoadBytes(b []byte) error {
	json, err := gabs.ParseJSON(b)
	if err != nil {
		return errors.Wrap(err, "failed to parse config")
	}

	mu.Lock()
	config = json
	mu.Unlock()
	return nil
}

// loadIfExists loads the file unless it does not exist.
func loadIfExists(file string) error {
	if _, err := os.Stat(file); os.IsNotExist(err) {
		return nil
	}
	return Load(file)
}

func init() {
	// Missing config file is not an error; flags have the last word.
	if err := loadIfExists(configFile); err != nil {
		log.Panic(err)
	}
}
