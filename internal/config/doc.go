// Package config provides configuration structures and utilities for pepfetch.
// It defines the defaults for the index endpoint, output directory, HTTP
// behavior, network transport and report generation, loads the optional
// .pepfetch YAML file and validates the merged result.
package config
