package graph_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/pipebook/internal/graph"
	"github.com/vk/pipebook/internal/pysrc"
	"github.com/vk/pipebook/internal/spec"
	"github.com/vk/pipebook/internal/testutil"
)

func build(t *testing.T, s *spec.Spec) *graph.Graph {
	t.Helper()
	g, err := graph.Build(testutil.Discard(), s, pysrc.NewAnalyzer())
	require.NoError(t, err)
	return g
}

func TestBuild_SourceClassification(t *testing.T) {
	dir := testutil.WriteTree(t, map[string]string{"pipeline.yaml": ""})
	s := &spec.Spec{
		Path: filepath.Join(dir, "pipeline.yaml"),
		Meta: spec.Meta{ExtractUpstream: true},
		Tasks: []spec.Task{
			{Source: "raw.py", Product: spec.Product{Value: "out/raw.ipynb"}},
			{Source: "my_tasks.clean.functions.clean"},
			{Name: "upload", Source: "data/raw.csv", Class: "Upload"},
		},
	}
	g := build(t, s)
	require.Len(t, g.Nodes(), 3)

	file, ok := g.Nodes()[0].Source.(graph.FileSource)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "raw.py"), file.Path)
	assert.Same(t, g.Nodes()[0], g.ByScriptPath(file.Path))

	fn, ok := g.Nodes()[1].Source.(graph.FunctionSource)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "my_tasks", "clean", "functions")+".py", fn.Module)
	assert.Equal(t, "clean", fn.Function)
	assert.Equal(t, "my_tasks.clean.functions.clean", fn.DotPath)
	assert.Equal(t, "clean", g.Nodes()[1].Name)

	_, ok = g.Nodes()[2].Source.(graph.OpaqueSource)
	assert.True(t, ok)
}

func TestBuild_Products(t *testing.T) {
	dir := testutil.WriteTree(t, map[string]string{"pipeline.yaml": ""})
	path := filepath.Join(dir, "pipeline.yaml")

	t.Run("scalar products are absolutized", func(t *testing.T) {
		s := &spec.Spec{Path: path, Tasks: []spec.Task{
			{Source: "raw.py", Product: spec.Product{Value: "out/raw.ipynb"}},
		}}
		n := build(t, s).Nodes()[0]
		want := filepath.Join(dir, "out", "raw.ipynb")
		assert.Equal(t, want, n.Product.AsString())
		assert.Equal(t, []string{want}, n.ProductPaths)
	})

	t.Run("mapping products become objects with sorted paths", func(t *testing.T) {
		s := &spec.Spec{Path: path, Tasks: []spec.Task{
			{Source: "raw.py", Product: spec.Product{Mapping: map[string]string{
				"nb":   "out/raw.ipynb",
				"data": "out/raw.csv",
			}}},
		}}
		n := build(t, s).Nodes()[0]
		assert.Equal(t, []string{
			filepath.Join(dir, "out", "raw.csv"),
			filepath.Join(dir, "out", "raw.ipynb"),
		}, n.ProductPaths)
		assert.Equal(t, filepath.Join(dir, "out", "raw.ipynb"),
			n.Product.GetAttr("nb").AsString())
	})

	t.Run("no product renders null", func(t *testing.T) {
		s := &spec.Spec{Path: path, Tasks: []spec.Task{{Source: "raw.py"}}}
		n := build(t, s).Nodes()[0]
		assert.True(t, n.Product.IsNull())
	})

	t.Run("opaque products stay untouched", func(t *testing.T) {
		s := &spec.Spec{Path: path, Tasks: []spec.Task{
			{Name: "load", Source: "load.sql", Product: spec.Product{Value: "raw_table"}},
		}}
		n := build(t, s).Nodes()[0]
		assert.Equal(t, "raw_table", n.Product.AsString())
	})

	t.Run("extract_product keeps the source literal", func(t *testing.T) {
		treeDir := testutil.WriteTree(t, map[string]string{
			"pipeline.yaml": "",
			"raw.py":        "product = {'nb': 'out/raw.ipynb'}\n",
		})
		s := &spec.Spec{
			Path:  filepath.Join(treeDir, "pipeline.yaml"),
			Meta:  spec.Meta{ExtractProduct: true},
			Tasks: []spec.Task{{Source: "raw.py"}},
		}
		n := build(t, s).Nodes()[0]
		assert.Equal(t, "{'nb': 'out/raw.ipynb'}", n.ProductLiteral)
		assert.True(t, n.Product.IsNull())
	})
}

func TestBuild_Upstream(t *testing.T) {
	t.Run("declared upstream resolves to products", func(t *testing.T) {
		dir := testutil.WriteTree(t, map[string]string{"pipeline.yaml": ""})
		s := &spec.Spec{Path: filepath.Join(dir, "pipeline.yaml"), Tasks: []spec.Task{
			{Source: "raw.py", Product: spec.Product{Value: "out/raw.ipynb"}},
			{Source: "clean.py", Upstream: []string{"raw"}},
		}}
		n := build(t, s).ByName("clean")
		require.NotNil(t, n)
		require.Contains(t, n.Upstream, "raw")
		assert.Equal(t, filepath.Join(dir, "out", "raw.ipynb"), n.Upstream["raw"].AsString())
	})

	t.Run("upstream is extracted from python sources", func(t *testing.T) {
		dir := testutil.WriteTree(t, map[string]string{
			"pipeline.yaml": "",
			"clean.py":      "upstream = {'raw': None}\n",
		})
		s := &spec.Spec{
			Path: filepath.Join(dir, "pipeline.yaml"),
			Meta: spec.Meta{ExtractUpstream: true},
			Tasks: []spec.Task{
				{Source: "raw.py", Product: spec.Product{Value: "out/raw.ipynb"}},
				{Source: "clean.py"},
			},
		}
		n := build(t, s).ByName("clean")
		require.NotNil(t, n)
		assert.Contains(t, n.Upstream, "raw")
		assert.False(t, n.NoInject)
	})

	t.Run("unresolvable upstream marks the node NoInject", func(t *testing.T) {
		dir := testutil.WriteTree(t, map[string]string{
			"pipeline.yaml": "",
			"clean.py":      "upstream = {'no_such_task': None}\n",
		})
		s := &spec.Spec{
			Path:  filepath.Join(dir, "pipeline.yaml"),
			Meta:  spec.Meta{ExtractUpstream: true},
			Tasks: []spec.Task{{Source: "clean.py"}},
		}
		n := build(t, s).ByName("clean")
		require.NotNil(t, n)
		assert.True(t, n.NoInject)
		assert.Nil(t, n.Upstream)
	})

	t.Run("extraction is off when the pipeline says so", func(t *testing.T) {
		dir := testutil.WriteTree(t, map[string]string{
			"pipeline.yaml": "",
			"clean.py":      "upstream = {'raw': None}\n",
		})
		s := &spec.Spec{
			Path: filepath.Join(dir, "pipeline.yaml"),
			Tasks: []spec.Task{
				{Source: "raw.py"},
				{Source: "clean.py"},
			},
		}
		n := build(t, s).ByName("clean")
		require.NotNil(t, n)
		assert.Nil(t, n.Upstream)
	})
}

func TestBuild_Errors(t *testing.T) {
	dir := testutil.WriteTree(t, map[string]string{"pipeline.yaml": ""})
	path := filepath.Join(dir, "pipeline.yaml")
	ctx := testutil.Discard()

	t.Run("duplicate task names", func(t *testing.T) {
		s := &spec.Spec{Path: path, Tasks: []spec.Task{
			{Name: "raw", Source: "a.py"},
			{Name: "raw", Source: "b.py"},
		}}
		_, err := graph.Build(ctx, s, pysrc.NewAnalyzer())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate")
	})

	t.Run("dependency cycles", func(t *testing.T) {
		s := &spec.Spec{Path: path, Tasks: []spec.Task{
			{Name: "a", Source: "a.py", Upstream: []string{"b"}},
			{Name: "b", Source: "b.py", Upstream: []string{"a"}},
		}}
		_, err := graph.Build(ctx, s, pysrc.NewAnalyzer())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cycle")
	})
}

func TestFunctionTasks(t *testing.T) {
	dir := testutil.WriteTree(t, map[string]string{"pipeline.yaml": ""})
	s := &spec.Spec{Path: filepath.Join(dir, "pipeline.yaml"), Tasks: []spec.Task{
		{Source: "raw.py"},
		{Source: "tasks.clean"},
		{Source: "tasks.plot"},
	}}
	g := build(t, s)

	fns := g.FunctionTasks()
	require.Len(t, fns, 2)
	assert.Equal(t, "clean", fns[0].Name)
	assert.Equal(t, "plot", fns[1].Name)
}
