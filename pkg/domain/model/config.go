package model

import (
	"bytes"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/stagehand/pkg/domain/types"
	"gopkg.in/yaml.v3"
)

// Variables is a map of environment variable bindings. Scalar YAML values
// of any type (strings, numbers, booleans) are accepted and kept as their
// literal text.
type Variables map[string]string

// UnmarshalYAML implements yaml.Unmarshaler
func (v *Variables) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return goerr.New("variables must be a mapping", goerr.V("line", node.Line))
	}

	vars := make(Variables, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i]
		val := node.Content[i+1]
		if val.Kind != yaml.ScalarNode {
			return goerr.New("variable value must be a scalar",
				goerr.V("name", key.Value), goerr.V("line", val.Line))
		}
		vars[key.Value] = val.Value
	}

	*v = vars
	return nil
}

// StringList accepts either a single scalar or a sequence of scalars
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler
func (s *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*s = StringList{node.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*s = StringList(list)
		return nil
	default:
		return goerr.New("expected string or list of strings", goerr.V("line", node.Line))
	}
}

// Duration wraps time.Duration for YAML decoding of values like "30m"
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return goerr.Wrap(err, "invalid duration", goerr.V("value", node.Value))
	}
	*d = Duration(parsed)
	return nil
}

// IncludeRef references an external pipeline fragment merged into the
// configuration. Either Local or Project/Ref/File is set.
type IncludeRef struct {
	Local   string     `yaml:"local"`
	Project string     `yaml:"project"`
	Ref     string     `yaml:"ref"`
	File    StringList `yaml:"file"`
}

// IsLocal reports whether the reference points at a file next to the
// main configuration
func (r *IncludeRef) IsLocal() bool {
	return r.Local != ""
}

// String returns a human readable identifier for logs and findings
func (r *IncludeRef) String() string {
	if r.IsLocal() {
		return r.Local
	}
	return fmt.Sprintf("%s@%s:%s", r.Project, r.Ref, strings.Join(r.File, ","))
}

// ArtifactSpec declares files collected after a successful job
type ArtifactSpec struct {
	Paths []string `yaml:"paths"`
}

// JobSpec is a single job definition within a pipeline configuration
type JobSpec struct {
	Stage        string        `yaml:"stage"`
	Script       []string      `yaml:"script"`
	Variables    Variables     `yaml:"variables"`
	Needs        []string      `yaml:"needs"`
	AllowFailure bool          `yaml:"allow_failure"`
	Timeout      Duration      `yaml:"timeout"`
	Artifacts    *ArtifactSpec `yaml:"artifacts"`
}

// ConfigFile is a single parsed YAML document, before include resolution.
// Any top-level key other than the reserved ones is a job definition.
type ConfigFile struct {
	Variables Variables           `yaml:"variables"`
	Include   []IncludeRef        `yaml:"include"`
	Stages    []string            `yaml:"stages"`
	Jobs      map[string]*JobSpec `yaml:",inline"`
}

// ParseConfigFile decodes a pipeline configuration document. Decoding is
// strict: unknown job-level keys are rejected.
func ParseConfigFile(data []byte) (*ConfigFile, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var file ConfigFile
	if err := dec.Decode(&file); err != nil {
		return nil, goerr.Wrap(types.ErrInvalidConfig, err.Error())
	}

	return &file, nil
}

// Merge folds an included document into the receiver. The receiver (the
// main file) wins on variable conflicts. Included files may not declare
// stages, and duplicate job names across documents are an error.
func (f *ConfigFile) Merge(included *ConfigFile, source string) error {
	if len(included.Stages) > 0 {
		return goerr.Wrap(types.ErrInvalidConfig, "included file may not declare stages",
			goerr.V("include", source))
	}
	if len(included.Include) > 0 {
		return goerr.Wrap(types.ErrInvalidConfig, "nested includes are not supported",
			goerr.V("include", source))
	}

	for name, value := range included.Variables {
		if _, ok := f.Variables[name]; !ok {
			if f.Variables == nil {
				f.Variables = Variables{}
			}
			f.Variables[name] = value
		}
	}

	for name, job := range included.Jobs {
		if _, ok := f.Jobs[name]; ok {
			return goerr.Wrap(types.ErrInvalidConfig, "duplicate job name in include",
				goerr.V("job", name), goerr.V("include", source))
		}
		if f.Jobs == nil {
			f.Jobs = map[string]*JobSpec{}
		}
		f.Jobs[name] = job
	}

	return nil
}

// Config is a fully merged and normalized pipeline configuration
type Config struct {
	Variables Variables
	Stages    []string
	Jobs      map[string]*JobSpec
}

// Normalize converts a merged file into a Config, applying stage defaults
func (f *ConfigFile) Normalize() *Config {
	cfg := &Config{
		Variables: f.Variables,
		Stages:    f.Stages,
		Jobs:      f.Jobs,
	}
	if cfg.Variables == nil {
		cfg.Variables = Variables{}
	}
	if cfg.Jobs == nil {
		cfg.Jobs = map[string]*JobSpec{}
	}
	if len(cfg.Stages) == 0 {
		cfg.Stages = slices.Clone(types.DefaultStages)
	}
	for _, job := range cfg.Jobs {
		if job == nil {
			continue
		}
		if job.Stage == "" {
			job.Stage = types.DefaultStage
		}
	}
	return cfg
}

// StageIndex returns the position of a stage in the declared order, or -1
func (c *Config) StageIndex(name string) int {
	return slices.Index(c.Stages, name)
}

// IsHidden reports whether a job name denotes a template job that is
// validated but never executed
func IsHidden(jobName string) bool {
	return strings.HasPrefix(jobName, ".")
}

// VisibleJobs returns the names of all runnable jobs, sorted
func (c *Config) VisibleJobs() []string {
	names := make([]string, 0, len(c.Jobs))
	for name := range c.Jobs {
		if !IsHidden(name) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// ResolveVariables expands $NAME and ${NAME} references in pipeline
// variables. References resolve against the pipeline variables first and
// the process environment second. Expansion is a single pass.
func (c *Config) ResolveVariables(overrides Variables) map[string]string {
	base := make(map[string]string, len(c.Variables)+len(overrides))
	for name, value := range c.Variables {
		base[name] = value
	}
	for name, value := range overrides {
		base[name] = value
	}

	resolved := make(map[string]string, len(base))
	for name, value := range base {
		resolved[name] = os.Expand(value, func(ref string) string {
			if ref == name {
				return "" // no self reference
			}
			if v, ok := base[ref]; ok {
				return v
			}
			return os.Getenv(ref)
		})
	}
	return resolved
}
