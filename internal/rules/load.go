package rules

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// overlay is the YAML schema of a rules file. Lists extend the built-in
// tables; scalar thresholds replace them when set.
type overlay struct {
	MinChars       *int     `yaml:"min_chars"`
	TechnicalRatio *float64 `yaml:"technical_ratio"`

	Styling       []string `yaml:"styling"`
	Footnotes     []string `yaml:"footnotes"`
	URLs          []string `yaml:"urls"`
	UIPhrases     []string `yaml:"ui_phrases"`
	LoadingNoise  []string `yaml:"loading_noise"`
	Labels        []string `yaml:"labels"`
	Loading       []string `yaml:"loading"`
	Technical     []string `yaml:"technical"`
	FunctionWords []string `yaml:"function_words"`
}

// Load returns the built-in set extended by the YAML file at path. An empty
// path yields the defaults.
func Load(path string) (*Set, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "rules: read %s", path)
	}
	return Parse(data)
}

// Parse compiles a rule set from YAML bytes.
func Parse(data []byte) (*Set, error) {
	var o overlay
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, eris.Wrap(err, "rules: parse yaml")
	}
	return compile(o)
}
