// Package confloader loads configuration with koanf.
//
// Sources, lowest priority first:
//
//  1. The defaults already set on the target struct
//  2. A YAML file
//  3. Environment variables with the PAIRLINK_ prefix
//  4. Overrides given as key=value on the command line
//
// Environment keys use a double underscore between sections so that key
// names may keep their own underscores:
//
//	PAIRLINK_SESSION__PAIRING_TIMEOUT=30s  ->  session.pairing_timeout
//
// Watcher reports changes to the config file so the server can apply the
// settings that are safe to change at runtime.
package confloader
