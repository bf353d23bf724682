package config

import (
	"os"
	"strconv"
)

// DefaultSQLitePath is where the Shape A store lives when
// CODESEARCH_SQLITE_PATH is unset.
const DefaultSQLitePath = "codesearch.db"

// DefaultQdrantPort is the gRPC port the managed client dials when
// QDRANT_PORT is unset, matching the teacher's hardcoded qdrant.Config.
const DefaultQdrantPort = 6334

// ResolveBackend finishes backend selection for a loaded config: an
// explicit cfg.Backend wins; otherwise the presence of QDRANT_HOST in the
// environment auto-detects BackendManaged, and its absence defaults to
// BackendSQL. Env values for connection details always take precedence over
// whatever the config file says, matching the teacher's env-override-last
// rule in pkg/config/config.go.
func ResolveBackend(cfg VectorStoreConfig) VectorStoreConfig {
	out := cfg

	host := os.Getenv("QDRANT_HOST")
	if out.Backend == "" {
		if host != "" {
			out.Backend = BackendManaged
		} else {
			out.Backend = BackendSQL
		}
	}

	if out.Backend == BackendManaged {
		if host != "" {
			out.Managed.Host = host
		} else if out.Managed.Host == "" {
			out.Managed.Host = "localhost"
		}
		if portStr := os.Getenv("QDRANT_PORT"); portStr != "" {
			if port, err := strconv.Atoi(portStr); err == nil {
				out.Managed.Port = port
			}
		} else if out.Managed.Port == 0 {
			out.Managed.Port = DefaultQdrantPort
		}
		if key := os.Getenv("QDRANT_API_KEY"); key != "" {
			out.Managed.APIKey = key
		}
	}

	if out.Backend == BackendSQL {
		if path := os.Getenv("CODESEARCH_SQLITE_PATH"); path != "" {
			out.SQL.Database = path
		} else if out.SQL.Database == "" {
			out.SQL.Database = DefaultSQLitePath
		}
	}

	return out
}
