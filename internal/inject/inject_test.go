package inject_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/pipebook/internal/graph"
	"github.com/vk/pipebook/internal/inject"
	"github.com/vk/pipebook/internal/notebook"
)

func scriptNode() *graph.Node {
	return &graph.Node{
		Name:    "clean",
		Source:  graph.FileSource{Path: "/proj/clean.py"},
		Product: cty.StringVal("/proj/out/clean.ipynb"),
		Upstream: map[string]cty.Value{
			"raw": cty.StringVal("/proj/out/raw.ipynb"),
		},
	}
}

func oneCell(src string) *notebook.Notebook {
	nb := notebook.New()
	nb.Cells = []notebook.Cell{{Type: notebook.Code, Source: src}}
	return nb
}

func TestInject(t *testing.T) {
	t.Run("prepends the parameters cell", func(t *testing.T) {
		nb := oneCell("df = clean(upstream)")
		out, err := inject.Inject(nb, scriptNode())
		require.NoError(t, err)
		require.Len(t, out.Cells, 2)

		cell := out.Cells[0]
		assert.True(t, cell.HasTag(inject.Tag))
		assert.Equal(t, "upstream = {'raw': '/proj/out/raw.ipynb'}\nproduct = '/proj/out/clean.ipynb'", cell.Source)
		assert.Len(t, nb.Cells, 1, "input notebook must stay untouched")
	})

	t.Run("replaces an existing parameters cell in place", func(t *testing.T) {
		nb := notebook.New()
		nb.Cells = []notebook.Cell{
			{Type: notebook.Code, Source: "import pandas"},
			{Type: notebook.Code, Source: "stale", Metadata: notebook.CellMetadata{Tags: []string{inject.Tag}}},
			{Type: notebook.Code, Source: "df = clean(upstream)"},
		}
		out, err := inject.Inject(nb, scriptNode())
		require.NoError(t, err)
		require.Len(t, out.Cells, 3)
		assert.Equal(t, "import pandas", out.Cells[0].Source)
		assert.True(t, out.Cells[1].HasTag(inject.Tag))
		assert.NotEqual(t, "stale", out.Cells[1].Source)
	})

	t.Run("renders None for tasks without upstream", func(t *testing.T) {
		node := scriptNode()
		node.Upstream = nil
		out, err := inject.Inject(oneCell("x"), node)
		require.NoError(t, err)
		assert.Equal(t, "upstream = None\nproduct = '/proj/out/clean.ipynb'", out.Cells[0].Source)
	})

	t.Run("uses the product literal verbatim when present", func(t *testing.T) {
		node := scriptNode()
		node.Upstream = nil
		node.Product = cty.NullVal(cty.DynamicPseudoType)
		node.ProductLiteral = "{'nb': 'out.ipynb'}"
		out, err := inject.Inject(oneCell("x"), node)
		require.NoError(t, err)
		assert.Equal(t, "upstream = None\nproduct = {'nb': 'out.ipynb'}", out.Cells[0].Source)
	})

	t.Run("skips NoInject nodes", func(t *testing.T) {
		node := scriptNode()
		node.NoInject = true
		nb := oneCell("x")
		out, err := inject.Inject(nb, node)
		require.NoError(t, err)
		assert.Same(t, nb, out)
	})

	t.Run("skips opaque sources", func(t *testing.T) {
		node := &graph.Node{Name: "load", Source: graph.OpaqueSource{Raw: "load.sql"}}
		nb := oneCell("x")
		out, err := inject.Inject(nb, node)
		require.NoError(t, err)
		assert.Same(t, nb, out)
	})

	t.Run("skips nil nodes", func(t *testing.T) {
		nb := oneCell("x")
		out, err := inject.Inject(nb, nil)
		require.NoError(t, err)
		assert.Same(t, nb, out)
	})

	t.Run("reports unserializable parameters", func(t *testing.T) {
		node := scriptNode()
		node.Upstream = map[string]cty.Value{"raw": cty.UnknownVal(cty.String)}
		_, err := inject.Inject(oneCell("x"), node)
		require.Error(t, err)

		var se *inject.SerializationError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "clean", se.Task)
	})
}

func TestStrip(t *testing.T) {
	t.Run("removes the parameters cell", func(t *testing.T) {
		out, err := inject.Inject(oneCell("x"), scriptNode())
		require.NoError(t, err)
		require.Len(t, out.Cells, 2)

		stripped := inject.Strip(out)
		require.Len(t, stripped.Cells, 1)
		assert.Equal(t, "x", stripped.Cells[0].Source)
		assert.Nil(t, inject.InjectedCell(stripped))
	})

	t.Run("is a no-op without a parameters cell", func(t *testing.T) {
		nb := oneCell("x")
		assert.Same(t, nb, inject.Strip(nb))
	})
}

func TestInjectedCell(t *testing.T) {
	nb := oneCell("x")
	assert.Nil(t, inject.InjectedCell(nb))

	out, err := inject.Inject(nb, scriptNode())
	require.NoError(t, err)
	cell := inject.InjectedCell(out)
	require.NotNil(t, cell)
	assert.True(t, cell.HasTag(inject.Tag))
}
