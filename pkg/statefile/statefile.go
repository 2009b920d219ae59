package statefile

import (
	"os"
	"path/filepath"
	"time"

	"github.com/core-tools/hsu-fundkeeper/pkg/errors"
	"github.com/core-tools/hsu-fundkeeper/pkg/logging"
	"github.com/core-tools/hsu-fundkeeper/pkg/registry"
	"github.com/core-tools/hsu-fundkeeper/pkg/strategy"
)

// FormatVersion is bumped on incompatible changes of Snapshot.
const FormatVersion = 1

// Snapshot is the persisted state of a fleet manager.
type Snapshot struct {
	Version              int                           `cbor:"version"`
	SavedAt              time.Time                     `cbor:"saved_at"`
	GlobalObtainStrategy strategy.ObtainStrategyConfig `cbor:"global_obtain_strategy"`
	Units                []registry.UnitState          `cbor:"units"`
}

// Store reads and writes one state file.
type Store struct {
	path   string
	logger logging.Logger
}

func NewStore(path string, logger logging.Logger) *Store {
	return &Store{
		path:   path,
		logger: logger,
	}
}

func (s *Store) Path() string {
	return s.path
}

// Save writes the snapshot atomically: a temporary file in the same
// directory is renamed over the target.
func (s *Store) Save(snapshot Snapshot) error {
	snapshot.Version = FormatVersion

	data, err := encMode.Marshal(snapshot)
	if err != nil {
		return errors.NewInternalError("failed to encode state", err).WithContext("state_file", s.path)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.NewIOError("failed to create state directory", err).WithContext("state_dir", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return errors.NewIOError("failed to create temporary state file", err).WithContext("state_dir", dir)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.NewIOError("failed to write state file", err).WithContext("state_file", tmpPath)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.NewIOError("failed to sync state file", err).WithContext("state_file", tmpPath)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.NewIOError("failed to close state file", err).WithContext("state_file", tmpPath)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return errors.NewIOError("failed to replace state file", err).WithContext("state_file", s.path)
	}

	s.logger.Infof("State file written, path: %s, units: %d, bytes: %d", s.path, len(snapshot.Units), len(data))
	return nil
}

// Load reads the snapshot. A missing file is not an error: the second
// result is false.
func (s *Store) Load() (Snapshot, bool, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.logger.Debugf("No state file, path: %s", s.path)
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, errors.NewIOError("failed to read state file", err).WithContext("state_file", s.path)
	}

	var snapshot Snapshot
	if err := decMode.Unmarshal(data, &snapshot); err != nil {
		return Snapshot{}, false, errors.NewValidationError("corrupt state file", err).WithContext("state_file", s.path)
	}
	if snapshot.Version != FormatVersion {
		return Snapshot{}, false, errors.NewValidationError("unsupported state file version", nil).
			WithContext("state_file", s.path).
			WithContext("version", snapshot.Version)
	}

	s.logger.Infof("State file read, path: %s, units: %d, saved_at: %s",
		s.path, len(snapshot.Units), snapshot.SavedAt.Format(time.RFC3339))
	return snapshot, true, nil
}
