package rocketfilter

import (
	"os"

	"github.com/goccy/go-yaml"
)

// RunConfig collects every parameter a run of the filter needs (spec §6).
// cmd/git-rocket-filter wires cobra flags directly onto a RunConfig value;
// LoadConfigFile additionally lets a run be described as YAML, for cases
// where the flag list gets unwieldy (many keep/remove rules, a long
// predicate body).
type RunConfig struct {
	RepoDir string `yaml:"repo"`
	Branch  string `yaml:"branch"`
	Force   bool   `yaml:"force"`

	Revspec string `yaml:"revspec"`

	KeepPatterns     string `yaml:"keep"`
	KeepPatternFile  string `yaml:"keep_file"`
	RemovePatterns   string `yaml:"remove"`
	RemovePatternFile string `yaml:"remove_file"`

	CommitFilter     string `yaml:"commit_filter"`
	CommitFilterFile string `yaml:"commit_filter_file"`

	Detach               bool `yaml:"detach"`
	IncludeLinks         bool `yaml:"include_links"`
	DisableThreads       bool `yaml:"disable_threads"`
	PreserveMergeCommits bool `yaml:"preserve_merge_commits"`
	MaxDepth             int  `yaml:"max_depth"`

	CheckPatches       bool `yaml:"check_patches"`
	StrictCheckPatches bool `yaml:"strict_check_patches"`

	Verbose bool `yaml:"verbose"`
}

// LoadConfigFile reads a YAML RunConfig from path and overlays it onto a
// zero-value RunConfig. Flags parsed by cobra afterwards take precedence,
// since cmd/git-rocket-filter applies them on top of whatever LoadConfigFile
// returns.
func LoadConfigFile(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &RunConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolvePatternText returns the configured inline pattern text, falling
// back to reading patternFile when text is empty. Both empty means "no
// rules configured for this polarity".
func resolvePatternText(text, patternFile string) (string, error) {
	if text != "" {
		return text, nil
	}
	if patternFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(patternFile)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// resolveCommitFilterText mirrors resolvePatternText for the single
// commit-filter predicate body.
func resolveCommitFilterText(text, file string) (string, error) {
	return resolvePatternText(text, file)
}
