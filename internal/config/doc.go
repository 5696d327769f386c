// Package config provides configuration structures and utilities for
// loftergrab. It defines crawl tuning options, report preferences, and
// the YAML config file format with per-blog overrides.
package config
