// Package config loads the engine configuration and catalog manifests.
//
// Both are YAML documents. Values may reference the environment with
// ${VAR_NAME} or ${VAR_NAME:-fallback}:
//
//	performance:
//	  batch_size: ${RUNSCAN_BATCH:-2048}
//	cache:
//	  target_chunk_bytes: 1048576
//
// Load decodes into any struct; LoadConfig applies defaults and validation
// to a Config.
package config
