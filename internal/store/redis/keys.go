package redis

import "fmt"

const (
	// KeyPrefixService is the prefix for mirrored service definitions
	KeyPrefixService = "whiterails:service:"
	// KeyPrefixRuns is the prefix for per-file run history lists
	KeyPrefixRuns = "whiterails:runs:"
	// KeyAllServices is the set of mirrored service source paths
	KeyAllServices = "whiterails:services:all"
	// KeyRunPaths is the set of source paths that have run history
	KeyRunPaths = "whiterails:runs:index"
)

// ServiceKey returns the Redis key for a service by source path
func ServiceKey(sourcePath string) string {
	return KeyPrefixService + sourcePath
}

// RunsKey returns the Redis key of the run history list for the service
// loaded from sourcePath. Names are not unique across files, paths are.
func RunsKey(sourcePath string) string {
	return KeyPrefixRuns + "path:" + sourcePath
}

// ExtractSourcePath extracts the source path from a service key
func ExtractSourcePath(key string) (string, error) {
	if len(key) <= len(KeyPrefixService) || key[:len(KeyPrefixService)] != KeyPrefixService {
		return "", fmt.Errorf("invalid service key: %s", key)
	}
	return key[len(KeyPrefixService):], nil
}
