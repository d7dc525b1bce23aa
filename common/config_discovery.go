package common

import (
	"os"
	"path/filepath"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/v2"
)

// configCandidates pairs the file names hearth looks for in its config home,
// in precedence order, with the parser for each format.
var configCandidates = []struct {
	name   string
	parser func() koanf.Parser
}{
	{"hearth.yml", func() koanf.Parser { return yaml.Parser() }},
	{"hearth.yaml", func() koanf.Parser { return yaml.Parser() }},
	{"hearth.toml", func() koanf.Parser { return toml.Parser() }},
	{"hearth.json", func() koanf.Parser { return json.Parser() }},
}

// findConfigFile locates hearth's config file under dir. The first existing
// candidate wins; any lower-precedence files that also exist come back as
// shadowed so the caller can warn about them. An empty path means no config
// file exists, which is not an error.
func findConfigFile(dir string) (path string, parser koanf.Parser, shadowed []string) {
	for _, candidate := range configCandidates {
		candidatePath := filepath.Join(dir, candidate.name)
		if _, err := os.Stat(candidatePath); err != nil {
			continue
		}
		if path == "" {
			path = candidatePath
			parser = candidate.parser()
			continue
		}
		shadowed = append(shadowed, candidatePath)
	}
	return path, parser, shadowed
}
