// Package target turns a query into the ordered endpoints that may hold its
// answer.
package target

import (
	"net/url"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/quickanswer/internal/model"
)

// Placeholder marks where the escaped query goes in a URL template.
const Placeholder = "{query}"

// Template is a named endpoint URL containing Placeholder.
type Template struct {
	Name string `mapstructure:"name" yaml:"name"`
	URL  string `mapstructure:"url" yaml:"url"`
}

// DefaultTemplates is the Bing answer page with the query-box form code.
var DefaultTemplates = []Template{
	{Name: "bing", URL: "https://www.bing.com/search?q=" + Placeholder + "&form=QBRE"},
}

// Resolver expands templates for a query.
type Resolver struct {
	templates []Template
}

// NewResolver validates templates. An empty list uses DefaultTemplates.
func NewResolver(templates []Template) (*Resolver, error) {
	if len(templates) == 0 {
		templates = DefaultTemplates
	}
	seen := make(map[string]bool, len(templates))
	for i, t := range templates {
		if t.Name == "" {
			return nil, eris.Errorf("target: endpoint %d has no name", i)
		}
		if seen[t.Name] {
			return nil, eris.Errorf("target: duplicate endpoint name %q", t.Name)
		}
		seen[t.Name] = true
		if !strings.Contains(t.URL, Placeholder) {
			return nil, eris.Errorf("target: endpoint %q url has no %s placeholder", t.Name, Placeholder)
		}
		u, err := url.Parse(strings.ReplaceAll(t.URL, Placeholder, "q"))
		if err != nil {
			return nil, eris.Wrapf(err, "target: endpoint %q url", t.Name)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, eris.Errorf("target: endpoint %q must be http or https, got %q", t.Name, u.Scheme)
		}
	}
	return &Resolver{templates: templates}, nil
}

// Resolve builds the target for q. Endpoint order follows the templates.
func (r *Resolver) Resolve(q model.Query) (model.Target, error) {
	if q.IsZero() {
		return model.Target{}, model.ErrEmptyQuery
	}
	escaped := Escape(q.String())
	eps := make([]model.Endpoint, len(r.templates))
	for i, t := range r.templates {
		eps[i] = model.Endpoint{Name: t.Name, URL: strings.ReplaceAll(t.URL, Placeholder, escaped)}
	}
	return model.Target{Query: q, Endpoints: eps}, nil
}

// Escape encodes s for a query-string value, with spaces as %20.
func Escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
