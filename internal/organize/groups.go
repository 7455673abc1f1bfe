package organize

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// groupsDoc is the on-disk shape of a duplicate-groups file, as produced
// by external duplicate finders or by hand.
type groupsDoc struct {
	Groups []DuplicateGroup `yaml:"groups" json:"groups"`
}

// ParseGroups decodes a duplicate-groups document. YAML and JSON both
// work. Unknown keys are fatal, same as plan files: a misspelled "remove"
// would silently quarantine nothing.
func ParseGroups(data []byte) ([]DuplicateGroup, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc groupsDoc

	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("organize: groups document is empty")
		}

		return nil, fmt.Errorf("parsing duplicate groups: %w", err)
	}

	if err := validateGroups(doc.Groups); err != nil {
		return nil, err
	}

	return doc.Groups, nil
}

// LoadGroups reads and parses a duplicate-groups file.
func LoadGroups(path string) ([]DuplicateGroup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading groups file %s: %w", path, err)
	}

	groups, err := ParseGroups(data)
	if err != nil {
		return nil, fmt.Errorf("groups file %s: %w", path, err)
	}

	return groups, nil
}

// validateGroups rejects documents that would lose data or double-process
// a file. The vault re-checks the keep/remove overlap at delete time with
// normalized paths; this is the early, friendlier error.
func validateGroups(groups []DuplicateGroup) error {
	if len(groups) == 0 {
		return errors.New("organize: groups document lists no groups")
	}

	removed := map[string]int{} // path -> group index

	for i, group := range groups {
		if group.Keep == "" {
			return fmt.Errorf("organize: group %d has no file to keep", i+1)
		}

		if len(group.Remove) == 0 {
			return fmt.Errorf("organize: group %d has no files to remove", i+1)
		}

		for _, path := range group.Remove {
			if path == "" {
				return fmt.Errorf("organize: group %d lists an empty path", i+1)
			}

			if path == group.Keep {
				return fmt.Errorf("organize: group %d both keeps and removes %q", i+1, path)
			}

			if prev, ok := removed[path]; ok {
				return fmt.Errorf("organize: %q removed by both group %d and group %d", path, prev, i+1)
			}

			removed[path] = i + 1
		}
	}

	return nil
}
