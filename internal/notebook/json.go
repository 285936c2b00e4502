package notebook

import (
	"encoding/json"
	"fmt"
)

// wire types for the nbformat v4 JSON shape. Source travels as a list of
// lines; code cells carry execution_count and outputs, which this layer
// never populates but must tolerate on input.

type wireNotebook struct {
	Cells         []wireCell     `json:"cells"`
	Metadata      map[string]any `json:"metadata"`
	NBFormat      int            `json:"nbformat"`
	NBFormatMinor int            `json:"nbformat_minor"`
}

// ExecutionCount and Outputs are required on code cells and forbidden on
// the others, hence raw messages instead of typed fields: code cells are
// written with `null` / `[]` and other cells leave them out entirely.
type wireCell struct {
	CellType       string                     `json:"cell_type"`
	Source         wireSource                 `json:"source"`
	Metadata       map[string]json.RawMessage `json:"metadata"`
	ExecutionCount json.RawMessage            `json:"execution_count,omitempty"`
	Outputs        json.RawMessage            `json:"outputs,omitempty"`
}

// wireSource accepts both the canonical line list and the plain-string form
// some clients send.
type wireSource struct {
	text string
}

func (s *wireSource) UnmarshalJSON(data []byte) error {
	var lines []string
	if err := json.Unmarshal(data, &lines); err == nil {
		s.text = joinLines(lines)
		return nil
	}
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return fmt.Errorf("cell source must be a string or list of strings")
	}
	s.text = text
	return nil
}

func (s wireSource) MarshalJSON() ([]byte, error) {
	return json.Marshal(splitLines(s.text))
}

// MarshalJSON encodes the notebook in nbformat v4.
func (nb *Notebook) MarshalJSON() ([]byte, error) {
	w := wireNotebook{
		Cells:         make([]wireCell, 0, len(nb.Cells)),
		Metadata:      nb.Metadata,
		NBFormat:      nb.Format,
		NBFormatMinor: nb.FormatMinor,
	}
	if w.Metadata == nil {
		w.Metadata = map[string]any{}
	}
	for _, cell := range nb.Cells {
		wc := wireCell{
			CellType: cell.Type,
			Source:   wireSource{text: cell.Source},
			Metadata: map[string]json.RawMessage{},
		}
		for k, v := range cell.Metadata.Extra {
			wc.Metadata[k] = v
		}
		if len(cell.Metadata.Tags) > 0 {
			tags, err := json.Marshal(cell.Metadata.Tags)
			if err != nil {
				return nil, err
			}
			wc.Metadata["tags"] = tags
		}
		if cell.Type == Code {
			wc.Outputs = json.RawMessage("[]")
			wc.ExecutionCount = json.RawMessage("null")
		}
		w.Cells = append(w.Cells, wc)
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes an nbformat v4 document.
func (nb *Notebook) UnmarshalJSON(data []byte) error {
	var w wireNotebook
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	nb.Metadata = w.Metadata
	nb.Format = w.NBFormat
	nb.FormatMinor = w.NBFormatMinor
	nb.Cells = nil
	for _, wc := range w.Cells {
		cell := Cell{Type: wc.CellType, Source: wc.Source.text}
		if raw, ok := wc.Metadata["tags"]; ok {
			if err := json.Unmarshal(raw, &cell.Metadata.Tags); err != nil {
				return fmt.Errorf("decoding cell tags: %w", err)
			}
		}
		for k, v := range wc.Metadata {
			if k == "tags" {
				continue
			}
			if cell.Metadata.Extra == nil {
				cell.Metadata.Extra = map[string]json.RawMessage{}
			}
			cell.Metadata.Extra[k] = v
		}
		nb.Cells = append(nb.Cells, cell)
	}
	return nil
}
