package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
)

// envPrefix namespaces environment overrides for flags: -max-run is read
// from BATHFAN_MAX_RUN.
const envPrefix = "BATHFAN_"

// defaultEnvFile is read at startup unless BATHFAN_ENV_FILE names another.
const defaultEnvFile = "/etc/bathfan.env"

// loadEnvFile reads KEY=value pairs from path into the process environment.
// A missing file is not an error, and variables already set are kept.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// envKey returns the environment variable that overrides flag name.
func envKey(name string) string {
	return envPrefix + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

// applyEnv sets every flag in set that has an environment override.
// Call it before Parse so command-line values still win.
func applyEnv(set *flag.FlagSet, lookup func(string) (string, bool)) error {
	var errs []error
	set.VisitAll(func(f *flag.Flag) {
		v, ok := lookup(envKey(f.Name))
		if !ok {
			return
		}
		if err := set.Set(f.Name, v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", envKey(f.Name), err))
		}
	})
	return errors.Join(errs...)
}
