package collector

import (
	"encoding/json"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

const stateFileName = "state.json"

// StatePersister saves and restores the aggregate snapshot. Saves go through
// a temp file that is flushed and fsynced before renaming over the target,
// so a crash can never leave a half-written state file behind.
type StatePersister struct {
	path string
	log  *zap.Logger
}

func NewStatePersister(stateDir string, log *zap.Logger) *StatePersister {
	return &StatePersister{
		path: filepath.Join(stateDir, stateFileName),
		log:  log,
	}
}

func (p *StatePersister) Path() string {
	return p.path
}

// Save writes the snapshot to disk. Failures are returned for logging but
// never abort a poll cycle; the previous on-disk state survives.
func (p *StatePersister) Save(snap *Snapshot) error {
	payload, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	return atomicWrite(p.path, payload)
}

// Load restores the snapshot from disk, best effort. A missing or corrupt
// file yields (nil, false) and startup proceeds with the empty default.
// After a good load the data-quality grade is forced to STARTING until the
// next real sample re-grades it.
func (p *StatePersister) Load() (*Snapshot, bool) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if !os.IsNotExist(err) {
			p.log.Warn("state load failed", zap.Error(err))
		}
		return nil, false
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		p.log.Warn("state file corrupt, starting fresh", zap.Error(err))
		return nil, false
	}

	snap.DQText = QualityStarting.Text
	snap.DQClass = QualityStarting.Class
	p.log.Info("restored previous state", zap.String("path", p.path))
	return &snap, true
}

func atomicWrite(path string, payload []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
