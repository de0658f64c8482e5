// Package config loads crossmatch configuration.
//
// Values come from a YAML file, then a .env file, then the process
// environment. Environment keys use the CROSSMATCH_ prefix with underscores
// for nesting, so CROSSMATCH_DATABASE_DSN sets database.dsn.
//
//	var cfg Config
//	err := config.LoadConfig("crossmatch", &cfg, config.WithConfigFile(path))
package config
