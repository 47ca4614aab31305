// Package config provides configuration management for webmirror.
//
// Configuration comes from three sources, in increasing precedence:
//   - Built-in defaults (NewConfig)
//   - An optional .webmirror YAML file with per-site profiles
//   - CLI flags, applied by the cmd package
//
// Design decision: There is no global configuration state and no
// initialization at import time. The caller constructs a Config, optionally
// merges a config file into it, validates it once, and passes it down by
// value through the application.
package config
