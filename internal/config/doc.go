// Package config loads server configuration.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// TRACKER_* environment variables. Command-line flags are applied by the
// caller on top and the result checked with Validate.
//
//	server:
//	  transport: http
//	  addr: ":8080"
//	  public_path: /mcp
//	log:
//	  level: info
//	  format: json
//	sessions:
//	  backend: redis
//	  ttl: 1h
//	redis:
//	  addr: localhost:6379
//	database:
//	  path: /var/lib/tracker/tracker.db
//	  seed_file: seed.yaml
//	auth:
//	  secret: change-me
//	  issuer: https://issuer.example
//	  audience: mcp-tracker
//
// Watch re-reads the file on change; the server uses it to adjust the log
// level without a restart.
package config
