// Package plan parses organization plans: declarative descriptions of
// where the files in a directory should go. A plan maps destination
// folders to the files that belong in them, plus optional renames, and
// compiles into a batch of journal operations. Plans arrive as YAML or
// JSON; yaml.v3 parses both.
package plan

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/foldsafe/foldsafe-go/internal/journal"
)

// Version is the highest plan format version this build understands.
const Version = 1

// Rename maps one file name to a new one inside the same directory.
type Rename struct {
	From string `yaml:"from" json:"from"`
	To   string `yaml:"to" json:"to"`
}

// Plan is a parsed organization plan. All names are relative to the
// directory being organized; the plan itself never references absolute
// paths.
type Plan struct {
	Version int                 `yaml:"version" json:"version"`
	Folders map[string][]string `yaml:"folders" json:"folders"`
	Renames []Rename            `yaml:"renames" json:"renames"`

	raw []byte
}

// Parse decodes and validates a plan document. Unknown keys are fatal:
// a typo like "folder:" silently dropping every move is worse than an
// upfront error.
func Parse(data []byte) (*Plan, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var p Plan

	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("plan: document is empty")
		}

		return nil, fmt.Errorf("parsing plan: %w", err)
	}

	if err := p.validate(); err != nil {
		return nil, err
	}

	p.raw = bytes.Clone(data)

	return &p, nil
}

// Load reads and parses a plan file.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan file %s: %w", path, err)
	}

	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("plan file %s: %w", path, err)
	}

	return p, nil
}

// Raw returns the original plan bytes for opaque storage on the
// history entry.
func (p *Plan) Raw() []byte {
	return p.raw
}

// FileCount returns the number of files the plan moves.
func (p *Plan) FileCount() int {
	n := 0
	for _, files := range p.Folders {
		n += len(files)
	}

	return n
}

// Summary describes the plan in one line for logs and dry-run output.
func (p *Plan) Summary() string {
	return fmt.Sprintf("folders: %d, files: %d, renames: %d",
		len(p.Folders), p.FileCount(), len(p.Renames))
}

// Operations compiles the plan into executor operations rooted at
// baseDir. The output is deterministic: folders in sorted order, each
// followed by its moves in listed order, renames last. Paths are
// NFC-normalized here, at the journaling boundary.
func (p *Plan) Operations(baseDir string) []journal.FileOperation {
	ops := make([]journal.FileOperation, 0, len(p.Folders)+p.FileCount()+len(p.Renames))

	folders := make([]string, 0, len(p.Folders))
	for name := range p.Folders {
		folders = append(folders, name)
	}

	sort.Strings(folders)

	for _, name := range folders {
		dest := journal.NormalizePath(filepath.Join(baseDir, name))

		ops = append(ops, journal.FileOperation{
			Kind:            journal.KindCreateFolder,
			DestinationPath: dest,
		})

		for _, file := range p.Folders[name] {
			ops = append(ops, journal.FileOperation{
				Kind:            journal.KindMove,
				SourcePath:      journal.NormalizePath(filepath.Join(baseDir, file)),
				DestinationPath: journal.NormalizePath(filepath.Join(dest, filepath.Base(file))),
			})
		}
	}

	for _, r := range p.Renames {
		ops = append(ops, journal.FileOperation{
			Kind:            journal.KindRename,
			SourcePath:      journal.NormalizePath(filepath.Join(baseDir, r.From)),
			DestinationPath: journal.NormalizePath(filepath.Join(baseDir, r.To)),
		})
	}

	return ops
}

// validate rejects plans that could not execute cleanly: unsupported
// versions, absolute or escaping names, files claimed by two
// destinations.
func (p *Plan) validate() error {
	if p.Version > Version {
		return fmt.Errorf("plan: version %d not supported (this build understands up to %d)",
			p.Version, Version)
	}

	if len(p.Folders) == 0 && len(p.Renames) == 0 {
		return errors.New("plan: no folders or renames")
	}

	seen := map[string]string{} // source name -> claiming destination

	for folder, files := range p.Folders {
		if err := validateName("destination folder", folder); err != nil {
			return err
		}

		for _, file := range files {
			if err := validateName("file", file); err != nil {
				return err
			}

			if prev, ok := seen[file]; ok {
				return fmt.Errorf("plan: file %q assigned to both %q and %q", file, prev, folder)
			}

			seen[file] = folder
		}
	}

	for _, r := range p.Renames {
		if err := validateName("rename source", r.From); err != nil {
			return err
		}

		if err := validateName("rename target", r.To); err != nil {
			return err
		}

		if prev, ok := seen[r.From]; ok {
			return fmt.Errorf("plan: file %q assigned to %q and also renamed", r.From, prev)
		}

		seen[r.From] = "rename"
	}

	return nil
}

// validateName enforces that a plan name stays inside the organized
// directory.
func validateName(kind, name string) error {
	if name == "" {
		return fmt.Errorf("plan: empty %s", kind)
	}

	if filepath.IsAbs(name) {
		return fmt.Errorf("plan: %s %q must be relative to the organized directory", kind, name)
	}

	if !filepath.IsLocal(name) {
		return fmt.Errorf("plan: %s %q escapes the organized directory", kind, name)
	}

	return nil
}
