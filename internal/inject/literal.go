package inject

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/zclconf/go-cty/cty"
)

// PyLiteral renders a cty value as a syntactically valid Python literal:
// strings are quoted, maps and objects become dicts with keys in sorted
// order, lists and tuples become lists, null becomes None. Values that have
// no literal form report an error.
func PyLiteral(v cty.Value) (string, error) {
	if v.IsNull() {
		return "None", nil
	}
	if !v.IsKnown() {
		return "", fmt.Errorf("value is not known")
	}

	ty := v.Type()
	switch {
	case ty == cty.String:
		return pyQuote(v.AsString()), nil
	case ty == cty.Bool:
		if v.True() {
			return "True", nil
		}
		return "False", nil
	case ty == cty.Number:
		f := v.AsBigFloat()
		if f.IsInt() {
			i, _ := f.Int64()
			return strconv.FormatInt(i, 10), nil
		}
		fv, _ := f.Float64()
		return strconv.FormatFloat(fv, 'g', -1, 64), nil
	case ty.IsMapType() || ty.IsObjectType():
		entries := make(map[string]string)
		keys := make([]string, 0)
		for it := v.ElementIterator(); it.Next(); {
			k, ev := it.Element()
			rendered, err := PyLiteral(ev)
			if err != nil {
				return "", err
			}
			entries[k.AsString()] = rendered
			keys = append(keys, k.AsString())
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, pyQuote(k)+": "+entries[k])
		}
		return "{" + strings.Join(parts, ", ") + "}", nil
	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		var parts []string
		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			rendered, err := PyLiteral(ev)
			if err != nil {
				return "", err
			}
			parts = append(parts, rendered)
		}
		return "[" + strings.Join(parts, ", ") + "]", nil
	}
	return "", fmt.Errorf("no Python literal form for %s", ty.FriendlyName())
}

// pyQuote renders a single-quoted Python string literal.
func pyQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return "'" + s + "'"
}
