package allin

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/SakaMax/nodule-ngs2/config"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// StateVersion is bumped whenever the checkpoint format changes
// incompatibly; resume refuses a version it does not know.
const StateVersion = 1

// PipelineState is the explicit state-transfer object persisted at
// every stage boundary: exactly the configuration, the path layout
// and the stage cursor. Live handles (loggers, adapters, open files)
// are reconstructed on resume, never serialized.
type PipelineState struct {
	Version int    `json:"version"`
	RunID   string `json:"runId"`

	// index of the next stage to run
	Cursor int `json:"cursor"`

	Config *config.Config `json:"config"`
	Layout Layout         `json:"layout"`

	// stage name -> error text for stages that failed under the
	// continue-on-error policy
	StageErrors map[string]string `json:"stageErrors,omitempty"`
}

// NewState builds the state of a cold-start run.
func NewState(c *config.Config, layout Layout) *PipelineState {
	return &PipelineState{
		Version:     StateVersion,
		RunID:       uuid.New().String(),
		Config:      c,
		Layout:      layout,
		StageErrors: make(map[string]string),
	}
}

// Checkpoint is one durable snapshot of the run, tagged with the
// stage boundary it was taken at ("before_<stage>" or "after_all").
type Checkpoint struct {
	Tag     string        `json:"tag"`
	SavedAt time.Time     `json:"savedAt"`
	State   PipelineState `json:"state"`
}

// checkpointPath is <dir>/<prefix>_<tag>.checkpoint
func checkpointPath(dir, prefix, tag string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s.checkpoint", prefix, tag))
}

// SaveCheckpoint writes the state snapshot for one stage boundary and
// returns the file path. The write goes through a temp file and a
// rename so a crash cannot leave a torn checkpoint behind.
func SaveCheckpoint(dir, prefix, tag string, state *PipelineState) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.Wrapf(err, "failed to create checkpoint directory %s", dir)
	}

	cp := Checkpoint{Tag: tag, SavedAt: time.Now(), State: *state}

	raw, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "failed to serialize checkpoint")
	}

	path := checkpointPath(dir, prefix, tag)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return "", errors.Wrapf(err, "failed to write checkpoint %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", errors.Wrapf(err, "failed to finalize checkpoint %s", path)
	}

	return path, nil
}

// LoadCheckpoint restores a checkpoint from disk. A corrupt or
// unreadable file is fatal; the caller should fall back to an earlier
// checkpoint.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read checkpoint %s", path)
	}

	var cp Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, errors.Wrapf(err, "checkpoint %s is corrupt; fall back to an earlier checkpoint", path)
	}

	if cp.State.Version != StateVersion {
		return nil, errors.Errorf("checkpoint %s has version %d, this build reads version %d", path, cp.State.Version, StateVersion)
	}

	if cp.State.StageErrors == nil {
		cp.State.StageErrors = make(map[string]string)
	}

	return &cp, nil
}

// Override replaces the restored configuration after resume. The rest
// of the state (layout, cursor, run id) is untouched.
func (s *PipelineState) Override(c *config.Config) {
	if c != nil {
		s.Config = c
	}
}
