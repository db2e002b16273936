package job

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Job describes an asynchronous workflow to be started on the backend, e.g.
// a content generation run or a site backup. The zero value is not valid –
// Kind is required.
type Job struct {
	Kind       string                 `json:"kind" yaml:"kind"`
	Name       string                 `json:"name,omitempty" yaml:"name,omitempty"`
	Input      map[string]interface{} `json:"input,omitempty" yaml:"input,omitempty"`
	Labels     map[string]string      `json:"labels,omitempty" yaml:"labels,omitempty"`
	TimeoutSec int                    `json:"timeoutSec,omitempty" yaml:"timeoutSec,omitempty"`
}

// Validate checks the minimal invariants required to submit the job.
func (j *Job) Validate() error {
	if j == nil {
		return fmt.Errorf("job is nil")
	}
	if j.Kind == "" {
		return fmt.Errorf("job kind is required")
	}
	return nil
}

// DecodeYAML parses a job definition from its YAML representation.
func DecodeYAML(data []byte) (*Job, error) {
	aJob := &Job{}
	if err := yaml.Unmarshal(data, aJob); err != nil {
		return nil, fmt.Errorf("failed to decode job YAML: %w", err)
	}
	if err := aJob.Validate(); err != nil {
		return nil, err
	}
	return aJob, nil
}
