// Package loader reads workflow definitions from YAML documents.
//
// The accepted shape follows the familiar CI layout:
//
//	name: ci
//	on: [push, pull_request]
//	jobs:
//	  test:
//	    needs: [build]
//	    strategy:
//	      matrix:
//	        toolchain: [stable, "1.43.0"]
//	    steps:
//	      - name: setup
//	        uses: setup-toolchain@v1
//	        with:
//	          version: ${{ matrix.toolchain }}
//	      - run: cargo test
//
// Jobs and matrix axes are decoded from the raw yaml.Node tree so that
// their declaration order survives; plain map decoding would shuffle
// them and break reproducible instance naming.
package loader

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/petrijr/conveyor/pkg/api"
)

// Load reads and parses the workflow definition at path. The returned
// workflow is validated structurally; dependency cycles are left to the
// engine's resolver.
func Load(path string) (api.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return api.Workflow{}, err
	}
	return Parse(data)
}

// Parse parses YAML content into a validated workflow definition.
func Parse(data []byte) (api.Workflow, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return api.Workflow{}, &api.ValidationError{Reason: "parse definition: " + err.Error()}
	}

	wf := api.Workflow{
		Name: doc.Name,
		On:   doc.On,
	}

	jobs, err := decodeJobs(doc.Jobs)
	if err != nil {
		return api.Workflow{}, err
	}
	wf.Jobs = jobs

	if err := wf.Validate(); err != nil {
		return api.Workflow{}, err
	}
	return wf, nil
}

type document struct {
	Name string     `yaml:"name"`
	On   stringList `yaml:"on"`
	Jobs yaml.Node  `yaml:"jobs"`
}

type jobDoc struct {
	Needs    stringList `yaml:"needs"`
	Strategy struct {
		Matrix yaml.Node `yaml:"matrix"`
	} `yaml:"strategy"`
	Steps []stepDoc `yaml:"steps"`
}

type stepDoc struct {
	Name  string            `yaml:"name"`
	Run   string            `yaml:"run"`
	Uses  string            `yaml:"uses"`
	With  map[string]string `yaml:"with"`
	Retry *retryDoc         `yaml:"retry"`
}

type retryDoc struct {
	MaxAttempts       int      `yaml:"max-attempts"`
	InitialBackoff    duration `yaml:"backoff"`
	MaxBackoff        duration `yaml:"max-backoff"`
	BackoffMultiplier float64  `yaml:"multiplier"`
}

// duration decodes "500ms" style strings, which yaml.v3 does not do for
// time.Duration on its own.
type duration time.Duration

func (d *duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = duration(parsed)
	return nil
}

// stringList accepts either a scalar or a sequence:
//
//	on: push
//	on: [push, pull_request]
type stringList []string

func (l *stringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		*l = stringList{s}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return err
		}
		*l = items
		return nil
	}
	return fmt.Errorf("line %d: expected string or list of strings", node.Line)
}

func decodeJobs(node yaml.Node) ([]api.Job, error) {
	if node.Kind == 0 || (node.Kind == yaml.ScalarNode && node.Value == "") {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, &api.ValidationError{Reason: "jobs must be a mapping of job name to job"}
	}

	var jobs []api.Job

	// Mapping nodes store alternating key/value children in document
	// order.
	for i := 0; i < len(node.Content); i += 2 {
		keyNode, valNode := node.Content[i], node.Content[i+1]

		var jd jobDoc
		if err := valNode.Decode(&jd); err != nil {
			return nil, &api.ValidationError{Job: keyNode.Value, Reason: "parse job: " + err.Error()}
		}

		job := api.Job{
			Name:  keyNode.Value,
			Needs: jd.Needs,
		}

		matrix, err := decodeMatrix(keyNode.Value, jd.Strategy.Matrix)
		if err != nil {
			return nil, err
		}
		job.Matrix = matrix

		for _, sd := range jd.Steps {
			step := api.Step{
				Name: sd.Name,
				Run:  sd.Run,
				Uses: sd.Uses,
				With: sd.With,
			}
			if sd.Retry != nil {
				step.Retry = &api.RetryPolicy{
					MaxAttempts:       sd.Retry.MaxAttempts,
					InitialBackoff:    time.Duration(sd.Retry.InitialBackoff),
					MaxBackoff:        time.Duration(sd.Retry.MaxBackoff),
					BackoffMultiplier: sd.Retry.BackoffMultiplier,
				}
			}
			job.Steps = append(job.Steps, step)
		}

		jobs = append(jobs, job)
	}

	return jobs, nil
}

func decodeMatrix(job string, node yaml.Node) ([]api.Axis, error) {
	if node.Kind == 0 {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, &api.ValidationError{Job: job, Reason: "matrix must be a mapping of axis name to value list"}
	}

	var axes []api.Axis
	for i := 0; i < len(node.Content); i += 2 {
		keyNode, valNode := node.Content[i], node.Content[i+1]

		if valNode.Kind != yaml.SequenceNode {
			return nil, &api.ValidationError{Job: job, Reason: fmt.Sprintf("matrix axis %q must be a list", keyNode.Value)}
		}

		axis := api.Axis{Name: keyNode.Value}
		for _, item := range valNode.Content {
			// Scalar values keep their literal text, so 1.43.0 and
			// "1.43.0" name the same instance.
			axis.Values = append(axis.Values, item.Value)
		}
		axes = append(axes, axis)
	}
	return axes, nil
}
