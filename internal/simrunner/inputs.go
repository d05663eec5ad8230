package simrunner

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mattn/go-zglob"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/technocodist/aitcsm/internal/simulation"
)

// InputFile is one yaml file of tasks. Every task's parameters are layered on top of Defaults.
type InputFile struct {
	Name     string                 `yaml:"name"`
	Engine   string                 `yaml:"engine"`
	Defaults map[string]interface{} `yaml:"defaults"`
	Tasks    []simulation.TaskSpec  `yaml:"tasks"`
}

// Submission is the set of tasks, gathered from one or more input files, run by a single engine.
type Submission struct {
	Engine string
	Files  []string
	Tasks  []simulation.TaskSpec
}

// InputFilesFromPatterns reads every file matched by any of patterns. Files matched by more than one pattern are
// read once.
func InputFilesFromPatterns(patterns []string) ([]*InputFile, []string, error) {
	seen := map[string]bool{}
	var filePaths []string
	for _, pattern := range patterns {
		matches, err := zglob.Glob(pattern)
		if err != nil {
			return nil, nil, errors.WithMessagef(err, "failed to expand input pattern %s", pattern)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				filePaths = append(filePaths, m)
			}
		}
	}
	sort.Strings(filePaths)
	if len(filePaths) == 0 {
		return nil, nil, errors.Errorf("no input files match %s", strings.Join(patterns, ", "))
	}

	files := make([]*InputFile, len(filePaths))
	for i, filePath := range filePaths {
		file, err := InputFileFromFilePath(filePath)
		if err != nil {
			return nil, nil, err
		}
		files[i] = file
	}
	return files, filePaths, nil
}

func InputFileFromFilePath(filePath string) (*InputFile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	rv := &InputFile{}
	if err := yaml.UnmarshalStrict(data, rv); err != nil {
		return nil, errors.WithMessagef(err, "failed to unmarshal input file %s", filePath)
	}

	// If no name is provided, set it to be the filename.
	if rv.Name == "" {
		fileName := filepath.Base(filePath)
		rv.Name = strings.TrimSuffix(fileName, filepath.Ext(fileName))
	}
	return rv, nil
}

// NewSubmission merges files into one submission. Files that do not name an engine use defaultEngine; all files
// must end up with the same engine.
func NewSubmission(files []*InputFile, filePaths []string, defaultEngine string) (*Submission, error) {
	submission := &Submission{Files: filePaths}
	for _, file := range files {
		engine := file.Engine
		if engine == "" {
			engine = defaultEngine
		}
		if engine == "" {
			return nil, errors.Errorf("input %s names no engine and no default engine is configured", file.Name)
		}
		if submission.Engine == "" {
			submission.Engine = engine
		} else if submission.Engine != engine {
			return nil, errors.Errorf("input %s uses engine %s but other inputs use %s", file.Name, engine, submission.Engine)
		}
		for _, task := range file.Tasks {
			submission.Tasks = append(submission.Tasks, simulation.TaskSpec{
				ID:     task.ID,
				Seed:   task.Seed,
				Params: mergeParams(file.Defaults, task.Params),
			})
		}
	}
	return submission, nil
}

func mergeParams(defaults, params map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(defaults)+len(params))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range params {
		merged[k] = v
	}
	return merged
}
