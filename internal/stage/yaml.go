package stage

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mtb-technology/reportflow/internal/types"
)

// stageDoc is the YAML document shape for a stage definition override file.
// Only timeouts and parallelism may be tuned; the stage set, types and
// dependency table are fixed and any attempt to change them is rejected.
type stageDoc struct {
	Stages []stageOverride `yaml:"stages"`
}

type stageOverride struct {
	ID       StageID       `yaml:"id"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`
	Parallel *bool         `yaml:"parallel,omitempty"`
}

// LoadDefinitions returns the fixed definitions with per-stage tuning
// applied from the YAML file at path. A missing path returns the defaults
// unchanged.
func LoadDefinitions(path string) (map[StageID]Stage, error) {
	defs := Definitions()
	if path == "" {
		return defs, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defs, nil
		}
		return nil, types.WrapError(types.CONFIG_LOAD_FAILED,
			fmt.Sprintf("failed to read stage definitions from %s", path), err)
	}

	var doc stageDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, types.WrapError(types.CONFIG_PARSE_FAILED,
			fmt.Sprintf("failed to parse stage definitions from %s", path), err)
	}

	for _, ov := range doc.Stages {
		def, ok := defs[ov.ID]
		if !ok {
			return nil, types.NewError(types.CONFIG_VALIDATION_FAILED,
				fmt.Sprintf("stage override references undefined stage %q", ov.ID))
		}
		if ov.Timeout > 0 {
			def.Timeout = ov.Timeout
		}
		if ov.Parallel != nil {
			def.Parallel = *ov.Parallel
		}
		defs[ov.ID] = def
	}

	return defs, nil
}
