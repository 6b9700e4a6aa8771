package env

import "os"

// Get returns the value of key, or fallback when the variable is unset
// or empty. Empty counts as unset so a blank line in an env file does
// not override the default.
func Get(key, fallback string) string {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	return val
}
