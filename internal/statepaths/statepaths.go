package statepaths

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const AuditFilename = "audit.jsonl"

// StateDir resolves the durable state directory: the `state_dir` viper
// key when set, otherwise ./state under the working directory.
func StateDir() string {
	dir := strings.TrimSpace(viper.GetString("state_dir"))
	if dir == "" {
		dir = "state"
	}
	return filepath.Clean(expandHome(dir))
}

func AuditPath() string {
	return filepath.Join(StateDir(), AuditFilename)
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil && home != "" {
			return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}
	return path
}
