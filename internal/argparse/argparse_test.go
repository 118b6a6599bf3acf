package argparse

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/scbrown/flit/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustSchema(t *testing.T, sources ...schema.Source) *schema.Schema {
	t.Helper()
	s, err := schema.Normalize(sources...)
	require.NoError(t, err)
	return s
}

var globals = schema.Raw{
	{Name: "help", Value: map[string]any{"alias": "h", "flag": true, "description": "Display this help text."}},
	{Name: "base", Value: map[string]any{"description": "Alternate base path."}},
	{Name: "verbose", Value: map[string]any{"alias": "v", "flag": true, "description": "Verbose mode."}},
}

func TestParseFlagsAndValues(t *testing.T) {
	p, err := New("flit", mustSchema(t, globals))
	require.NoError(t, err)

	opts, err := p.Parse([]string{"-v", "--base", "/srv/app", "build", "test"})
	require.NoError(t, err)

	assert.True(t, opts.Bool("verbose"))
	assert.True(t, opts.Bool("v"), "alias lookup")
	base, ok := opts.String("base")
	assert.True(t, ok)
	assert.Equal(t, "/srv/app", base)
	assert.False(t, opts.Has("help"))
	assert.Equal(t, []string{"build", "test"}, opts.Args())
}

func TestParseRecognizesContributedOption(t *testing.T) {
	tools := schema.Raw{{Name: "watch", Value: map[string]any{"alias": "w", "flag": true, "help": "Rebuild on change"}}}
	p, err := New("flit", mustSchema(t, globals, tools))
	require.NoError(t, err)

	for _, argv := range [][]string{{"--watch"}, {"-w"}, {"-vw"}} {
		opts, err := p.Parse(argv)
		require.NoError(t, err, "argv %v", argv)
		assert.True(t, opts.Bool("watch"), "argv %v", argv)
		assert.True(t, opts.Bool("w"), "argv %v", argv)
	}
}

func TestParseUnknownFlag(t *testing.T) {
	s := mustSchema(t, globals)

	strict, err := New("flit", s)
	require.NoError(t, err)
	_, err = strict.Parse([]string{"--watch"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown flag: --watch")

	lenient, err := New("flit", s, AllowUnknown())
	require.NoError(t, err)
	opts, err := lenient.Parse([]string{"--watch", "-v"})
	require.NoError(t, err)
	assert.True(t, opts.Bool("verbose"))
}

func TestParseHandlesAreIndependent(t *testing.T) {
	first, err := New("flit", mustSchema(t, globals))
	require.NoError(t, err)
	second, err := New("flit", mustSchema(t, globals, schema.Raw{{Name: "watch", Value: map[string]any{"flag": true}}}))
	require.NoError(t, err)

	_, err = second.Parse([]string{"--watch"})
	require.NoError(t, err)

	a, err := first.Parse([]string{"-v"})
	require.NoError(t, err)
	b, err := first.Parse(nil)
	require.NoError(t, err)
	assert.True(t, a.Bool("verbose"))
	assert.False(t, b.Bool("verbose"), "values must not carry over between parses")
	assert.Len(t, first.Specs(), 3)
}

func TestParsePositionalAndDefaults(t *testing.T) {
	s := mustSchema(t, schema.Raw{
		{Name: "target", Value: map[string]any{"position": 0, "help": "What to build"}},
		{Name: "mode", Value: map[string]any{"position": 1, "default": "debug"}},
		{Name: "env", Value: map[string]any{"short": "e", "default": "dev"}},
		{Name: "tag", Value: map[string]any{"alias": "t", "list": true}},
	})
	p, err := New("flit", s)
	require.NoError(t, err)

	opts, err := p.Parse([]string{"app", "-t", "a", "--tag=b"})
	require.NoError(t, err)

	target, _ := opts.String("target")
	assert.Equal(t, "app", target)
	mode, _ := opts.String("mode")
	assert.Equal(t, "debug", mode)
	env, ok := opts.String("e")
	assert.True(t, ok)
	assert.Equal(t, "dev", env)
	assert.Equal(t, []string{"a", "b"}, opts.Strings("tag"))
	last, _ := opts.String("tag")
	assert.Equal(t, "b", last)
}

func TestParseLongAlias(t *testing.T) {
	s := mustSchema(t, schema.Raw{
		{Name: "dry-run", Value: map[string]any{"alias": "noop", "flag": true}},
		{Name: "output", Value: map[string]any{"alias": "out"}},
	})
	p, err := New("flit", s)
	require.NoError(t, err)

	opts, err := p.Parse([]string{"--noop", "--out", "dist"})
	require.NoError(t, err)
	assert.True(t, opts.Bool("dry-run"))
	out, _ := opts.String("output")
	assert.Equal(t, "dist", out)
	assert.Equal(t, []string{"--dry-run", "--noop", "--output", "--out"}, opts.Names())
	assert.NotContains(t, p.Usage(), "--noop", "long aliases are hidden from usage")
}

func TestNewReportsAliasConflicts(t *testing.T) {
	s := mustSchema(t, globals, schema.Raw{{Name: "version", Value: map[string]any{"alias": "v", "flag": true}}})
	p, err := New("flit", s)

	var cfgErr *schema.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "version", cfgErr.Option)

	opts, err := p.Parse([]string{"-v", "--version"})
	require.NoError(t, err)
	assert.True(t, opts.Bool("verbose"))
	assert.True(t, opts.Bool("version"))
}

func TestUsageKeepsSchemaOrder(t *testing.T) {
	s := mustSchema(t, globals, schema.Raw{
		{Name: "another", Value: map[string]any{"desc": "Comes last"}},
		{Name: "file", Value: map[string]any{"position": 0, "desc": "Input file"}},
	})
	p, err := New("flit", s)
	require.NoError(t, err)

	usage := p.Usage()
	assert.True(t, strings.HasPrefix(usage, "Usage: flit <file> [options]\n"), usage)
	assert.Contains(t, usage, "Arguments:\n  file   Input file\n")

	var order []int
	for _, text := range []string{"Display this help text.", "Alternate base path.", "Verbose mode.", "Comes last"} {
		i := strings.Index(usage, text)
		require.GreaterOrEqual(t, i, 0, "usage is missing %q:\n%s", text, usage)
		order = append(order, i)
	}
	assert.IsIncreasing(t, order)
}

func TestOptionsJSON(t *testing.T) {
	p, err := New("flit", mustSchema(t, globals))
	require.NoError(t, err)
	opts, err := p.Parse([]string{"-h", "build"})
	require.NoError(t, err)

	data, err := json.Marshal(opts)
	require.NoError(t, err)
	assert.JSONEq(t, `{"options":{"help":true},"args":["build"]}`, string(data))
}
