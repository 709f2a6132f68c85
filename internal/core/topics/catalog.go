// Package topics keeps the topic -> account ranking in step with an external
// curation service.
package topics

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Topic is a curated category of accounts.
type Topic struct {
	Slug string `yaml:"slug"`
	Name string `yaml:"name"`
}

type catalogFile struct {
	Topics []Topic `yaml:"topics"`
}

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// LoadCatalog reads the topic list from a YAML file.
func LoadCatalog(path string) ([]Topic, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read topic catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML topic list:
//
//	topics:
//	  - slug: technology
//	    name: Technology
func ParseCatalog(data []byte) ([]Topic, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse topic catalog: %w", err)
	}

	seen := make(map[string]bool, len(file.Topics))
	for i, t := range file.Topics {
		if !slugPattern.MatchString(t.Slug) {
			return nil, fmt.Errorf("topic %d: invalid slug %q", i, t.Slug)
		}
		if seen[t.Slug] {
			return nil, fmt.Errorf("topic %d: duplicate slug %q", i, t.Slug)
		}
		seen[t.Slug] = true
		if t.Name == "" {
			file.Topics[i].Name = t.Slug
		}
	}
	return file.Topics, nil
}
