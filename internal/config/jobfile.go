package config

import (
	"bufio"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"
	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/storm-track-tagger/internal/domain"
	"github.com/couchcryptid/storm-track-tagger/internal/geodesy"
)

//go:embed jobfile.cue
var jobSchema string

// DefaultOutputSuffix is appended to each mask file's stem.
const DefaultOutputSuffix = "_tagged"

// ErrInvalidJobFile wraps schema and consistency failures.
var ErrInvalidJobFile = errors.New("invalid job file")

// JobFile describes a batch run. Relative paths are resolved against the
// directory holding the job file.
type JobFile struct {
	TrackFile     string   `yaml:"track_file"`
	Mesh          string   `yaml:"mesh"`
	MaskFiles     []string `yaml:"mask_files"`
	MaskList      string   `yaml:"mask_list"`
	OutputDir     string   `yaml:"output_dir"`
	OutputSuffix  string   `yaml:"output_suffix"`
	BinaryVar     string   `yaml:"binary_var"`
	TagVar        string   `yaml:"tag_var"`
	Threshold     *float64 `yaml:"threshold_m"`
	Radius        float64  `yaml:"radius_m"`
	Unit          string   `yaml:"unit"`
	Workers       int      `yaml:"workers"`
	ParallelFiles int      `yaml:"parallel_files"`
}

// LoadJobFile reads a YAML job file, validates it against the embedded CUE
// schema and expands mask_list into MaskFiles.
func LoadJobFile(path string) (*JobFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job file: %w", err)
	}
	if err := ValidateJobFile(path, data); err != nil {
		return nil, err
	}

	var jf JobFile
	if err := yaml.Unmarshal(data, &jf); err != nil {
		return nil, fmt.Errorf("decode job file: %w", err)
	}

	base := filepath.Dir(path)
	jf.TrackFile = resolve(base, jf.TrackFile)
	jf.OutputDir = resolve(base, jf.OutputDir)
	for i, m := range jf.MaskFiles {
		jf.MaskFiles[i] = resolve(base, m)
	}
	if jf.MaskList != "" {
		listed, err := readMaskList(resolve(base, jf.MaskList))
		if err != nil {
			return nil, err
		}
		jf.MaskFiles = append(jf.MaskFiles, listed...)
	}
	if len(jf.MaskFiles) == 0 {
		return nil, fmt.Errorf("%w: no mask files (set mask_files or mask_list)", ErrInvalidJobFile)
	}
	if jf.OutputSuffix == "" {
		jf.OutputSuffix = DefaultOutputSuffix
	}
	if jf.BinaryVar != "" && jf.BinaryVar == jf.TagVar {
		return nil, fmt.Errorf("%w: tag_var must differ from binary_var", ErrInvalidJobFile)
	}
	return &jf, nil
}

// ValidateJobFile checks YAML job file contents against the embedded schema.
func ValidateJobFile(filename string, data []byte) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(jobSchema, cue.Filename("jobfile.cue"))
	if schema.Err() != nil {
		return fmt.Errorf("compile job schema: %w", schema.Err())
	}

	file, err := cueyaml.Extract(filename, data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJobFile, err)
	}
	value := ctx.BuildFile(file)
	if value.Err() != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJobFile, value.Err())
	}

	final := schema.LookupPath(cue.ParsePath("#Job")).Unify(value)
	if err := final.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJobFile, err)
	}
	return nil
}

// Requests expands the job file into one request per mask file. Outputs are
// named <stem><suffix>.nc inside OutputDir.
func (jf *JobFile) Requests() []domain.JobRequest {
	reqs := make([]domain.JobRequest, 0, len(jf.MaskFiles))
	for _, mask := range jf.MaskFiles {
		stem := strings.TrimSuffix(filepath.Base(mask), filepath.Ext(mask))
		reqs = append(reqs, domain.JobRequest{
			ID:         stem,
			TrackFile:  jf.TrackFile,
			MaskFile:   mask,
			OutputFile: filepath.Join(jf.OutputDir, stem+jf.OutputSuffix+".nc"),
			Mesh:       jf.Mesh,
			BinaryVar:  jf.BinaryVar,
			TagVar:     jf.TagVar,
			Threshold:  jf.Threshold,
		})
	}
	return reqs
}

// ApplyTo overrides the tagger settings the job file sets.
func (jf *JobFile) ApplyTo(t *domain.Tagger) error {
	if jf.Threshold != nil {
		t.Threshold = *jf.Threshold
	}
	if jf.Radius > 0 {
		t.Radius = jf.Radius
	}
	if jf.Unit != "" {
		u, err := geodesy.ParseUnit(jf.Unit)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidJobFile, err)
		}
		t.Unit = u
	}
	if jf.Workers > 0 {
		t.Workers = jf.Workers
	}
	return nil
}

// readMaskList reads one path per line; blank lines and # comments are
// skipped and relative paths resolve against the list's directory.
func readMaskList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read mask list: %w", err)
	}
	defer f.Close()

	base := filepath.Dir(path)
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, resolve(base, line))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read mask list: %w", err)
	}
	return out, nil
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
