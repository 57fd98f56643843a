// Package config loads the YAML configuration of the timelapse command.
package config
