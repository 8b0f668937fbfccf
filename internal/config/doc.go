// Package config provides configuration parsing for switchyard servers.
//
// The configuration is stored in switchyard.json in the working directory
// or one of its parents. This package handles loading, saving, validating
// and converting it into a server.Config.
//
// # Configuration File Structure
//
//	{
//	  "name": "edge",
//	  "server": {
//	    "address": ":8080",
//	    "strictNext": true,
//	    "handleUncaughtExceptions": true,
//	    "requestTimeout": "30s"
//	  },
//	  "admin": {"enabled": true, "address": "127.0.0.1:9090"},
//	  "metrics": {"enabled": true, "namespace": "switchyard"},
//	  "tracing": {"enabled": false},
//	  "throttle": {"limit": 512, "retryAfter": "1s"},
//	  "canonical": {"enabled": true},
//	  "log": {"level": "info", "format": "json"},
//	  "routes": [
//	    {"method": "GET", "path": "/hello/:name", "body": "hello {name}"}
//	  ]
//	}
//
// # Usage
//
//	cfg, err := config.LoadFromWorkingDir()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	srv := server.New(cfg.ServerConfig(cfg.Logger(os.Stderr)))
package config
