// Package config loads the fleet file: coordinator settings plus the static
// table of worker definitions. YAML and TOML are both accepted.
package config
