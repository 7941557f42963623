package target

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/quickanswer/internal/model"
)

func mustQuery(t *testing.T, s string) model.Query {
	t.Helper()
	q, err := model.NewQuery(s)
	require.NoError(t, err)
	return q
}

func TestResolve_Default(t *testing.T) {
	r, err := NewResolver(nil)
	require.NoError(t, err)

	tgt, err := r.Resolve(mustQuery(t, "capital of France"))
	require.NoError(t, err)
	require.Len(t, tgt.Endpoints, 1)
	assert.Equal(t, "bing", tgt.Primary().Name)
	assert.Equal(t, "https://www.bing.com/search?q=capital%20of%20France&form=QBRE", tgt.Primary().URL)
	assert.Equal(t, "capital of France", tgt.Query.String())
}

func TestResolve_Order(t *testing.T) {
	r, err := NewResolver([]Template{
		{Name: "primary", URL: "https://a.example/ask?q={query}"},
		{Name: "fallback", URL: "http://b.example/s/{query}?x=1"},
	})
	require.NoError(t, err)

	tgt, err := r.Resolve(mustQuery(t, "a&b=c?"))
	require.NoError(t, err)
	assert.Equal(t, []model.Endpoint{
		{Name: "primary", URL: "https://a.example/ask?q=a%26b%3Dc%3F"},
		{Name: "fallback", URL: "http://b.example/s/a%26b%3Dc%3F?x=1"},
	}, tgt.Endpoints)
}

func TestResolve_ZeroQuery(t *testing.T) {
	r, err := NewResolver(nil)
	require.NoError(t, err)
	_, err = r.Resolve(model.Query{})
	require.ErrorIs(t, err, model.ErrEmptyQuery)
}

func TestNewResolver_Errors(t *testing.T) {
	tests := []struct {
		name      string
		templates []Template
		want      string
	}{
		{"no name", []Template{{URL: "https://a.example?q={query}"}}, "has no name"},
		{"duplicate", []Template{
			{Name: "a", URL: "https://a.example?q={query}"},
			{Name: "a", URL: "https://b.example?q={query}"},
		}, "duplicate"},
		{"no placeholder", []Template{{Name: "a", URL: "https://a.example"}}, "placeholder"},
		{"bad scheme", []Template{{Name: "a", URL: "ftp://a.example/{query}"}}, "http or https"},
		{"unparseable", []Template{{Name: "a", URL: "https://a example.com/%zz{query}"}}, "url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewResolver(tt.templates)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestEscape(t *testing.T) {
	assert.Equal(t, "how%20tall%20is%20K2%3F", Escape("how tall is K2?"))
	assert.Equal(t, "caf%C3%A9", Escape("café"))
	assert.Equal(t, "1%2B1", Escape("1+1"))
}
