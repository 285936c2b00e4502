package notebook

import (
	"encoding/json"
	"regexp"
	"strings"
)

// The percent format: cells are introduced by `# %%` marker lines, markdown
// and raw cells by `# %% [markdown]` / `# %% [raw]` with every body line
// behind a `# ` comment prefix, and cell tags ride on the marker as
// `tags=["..."]`. A script with no markers at all is a single code cell, and
// a single untagged code cell converts back to a bare script, so files that
// never were notebooks stay plain.

var markerRe = regexp.MustCompile(`^# %%(?: \[(markdown|raw)\])?(?: tags=(\[.*\]))?\s*$`)

// preambleKey marks a leading cell that had no marker line in the source
// script. Conversion back must not invent one, or a save would rewrite a
// file the user never edited.
const preambleKey = "script_preamble"

func isPreamble(c Cell) bool {
	raw, ok := c.Metadata.Extra[preambleKey]
	return ok && string(raw) == "true"
}

// FromScript converts a script in percent format to a notebook.
func FromScript(src string) *Notebook {
	nb := New()
	lines := strings.Split(strings.TrimSuffix(src, "\n"), "\n")

	type block struct {
		cell Cell
		body []string
	}
	var blocks []*block

	for _, line := range lines {
		m := markerRe.FindStringSubmatch(line)
		if m == nil {
			if len(blocks) == 0 {
				// Content before the first marker: a plain script cell,
				// flagged so it stays marker-less on the way back.
				blocks = append(blocks, &block{cell: Cell{
					Type: Code,
					Metadata: CellMetadata{Extra: map[string]json.RawMessage{
						preambleKey: json.RawMessage("true"),
					}},
				}})
			}
			last := blocks[len(blocks)-1]
			last.body = append(last.body, line)
			continue
		}

		b := &block{cell: Cell{Type: Code}}
		switch m[1] {
		case "markdown":
			b.cell.Type = Markdown
		case "raw":
			b.cell.Type = Raw
		}
		if m[2] != "" {
			var tags []string
			if err := json.Unmarshal([]byte(m[2]), &tags); err == nil {
				b.cell.Metadata.Tags = tags
			}
		}
		blocks = append(blocks, b)
	}

	for i, b := range blocks {
		body := b.body
		// Drop the single blank separator line before the next marker.
		if i < len(blocks)-1 && len(body) > 0 && body[len(body)-1] == "" {
			body = body[:len(body)-1]
		}
		if b.cell.Type != Code {
			for j, line := range body {
				body[j] = uncomment(line)
			}
		}
		b.cell.Source = strings.Join(body, "\n")
		nb.Cells = append(nb.Cells, b.cell)
	}

	if len(nb.Cells) == 0 {
		nb.Cells = []Cell{{Type: Code}}
	}
	return nb
}

// ToScript converts a notebook back to its percent-format script.
func ToScript(nb *Notebook) string {
	if len(nb.Cells) == 1 && nb.Cells[0].Type == Code && len(nb.Cells[0].Metadata.Tags) == 0 {
		if nb.Cells[0].Source == "" {
			return ""
		}
		return nb.Cells[0].Source + "\n"
	}

	blocks := make([]string, 0, len(nb.Cells))
	for i, cell := range nb.Cells {
		if i == 0 && cell.Type == Code && len(cell.Metadata.Tags) == 0 &&
			isPreamble(cell) && cell.Source != "" {
			blocks = append(blocks, cell.Source)
			continue
		}

		marker := "# %%"
		switch cell.Type {
		case Markdown:
			marker += " [markdown]"
		case Raw:
			marker += " [raw]"
		}
		if len(cell.Metadata.Tags) > 0 {
			tags, err := json.Marshal(cell.Metadata.Tags)
			if err == nil {
				marker += " tags=" + string(tags)
			}
		}

		body := cell.Source
		if cell.Type != Code && body != "" {
			lines := strings.Split(body, "\n")
			for i, line := range lines {
				lines[i] = comment(line)
			}
			body = strings.Join(lines, "\n")
		}

		if body == "" {
			blocks = append(blocks, marker)
		} else {
			blocks = append(blocks, marker+"\n"+body)
		}
	}
	return strings.Join(blocks, "\n\n") + "\n"
}

func comment(line string) string {
	if line == "" {
		return "#"
	}
	return "# " + line
}

func uncomment(line string) string {
	if line == "#" {
		return ""
	}
	return strings.TrimPrefix(line, "# ")
}
