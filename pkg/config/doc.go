// Package config loads application configuration from environment variables
// into tagged structs using github.com/caarlos0/env/v11, with optional .env
// files read by github.com/joho/godotenv.
//
// Each configuration type is parsed once and cached for the lifetime of the
// process:
//
//	var cfg pg.Config
//	if err := config.Load(&cfg); err != nil {
//	    return err
//	}
//
// LoadEnv reads custom .env files before parsing; later files take
// precedence, variables already present in the environment always win.
// ResetCache and ForceReloadConfig are meant for tests that change the
// environment.
//
// Errors can be compared with errors.Is against ErrParsingConfig,
// ErrInvalidConfigType, ErrConfigNotLoaded and ErrNilPointer.
package config
