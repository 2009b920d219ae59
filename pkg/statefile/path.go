package statefile

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const (
	DefaultAppName  = "hsu-fundkeeper"
	DefaultFileName = "fundkeeper.state"

	// AutoPath asks for the OS-appropriate default location.
	AutoPath = "auto"
)

// ServiceContext selects the default state directory.
type ServiceContext string

const (
	// SystemService runs as a system service (daemon)
	SystemService ServiceContext = "system"

	// UserService runs as a user service
	UserService ServiceContext = "user"
)

// ResolvePath returns path unchanged unless it is AutoPath, in which case
// the default state file for the service context is returned.
func ResolvePath(path string, serviceContext ServiceContext) string {
	if path != AutoPath {
		return path
	}
	return filepath.Join(stateDirectory(serviceContext), DefaultAppName, DefaultFileName)
}

func stateDirectory(serviceContext ServiceContext) string {
	if serviceContext == UserService {
		return userStateDirectory()
	}
	return systemStateDirectory()
}

func systemStateDirectory() string {
	switch runtime.GOOS {
	case "windows":
		programData := os.Getenv("PROGRAMDATA")
		if programData == "" {
			programData = "C:\\ProgramData"
		}
		return programData
	case "darwin":
		return "/Library/Application Support"
	default:
		return "/var/lib"
	}
}

func userStateDirectory() string {
	switch runtime.GOOS {
	case "windows":
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			return localAppData
		}
		return os.TempDir()
	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return os.TempDir()
		}
		return filepath.Join(homeDir, "Library", "Application Support")
	default:
		if stateHome := os.Getenv("XDG_STATE_HOME"); stateHome != "" {
			return stateHome
		}
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Sprintf("/tmp/%d", os.Getuid())
		}
		return filepath.Join(homeDir, ".local", "state")
	}
}
