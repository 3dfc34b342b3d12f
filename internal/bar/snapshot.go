package bar

import (
	"slices"
	"time"
)

type BoxView struct {
	Text      string   `json:"text"`
	Expanded  string   `json:"expanded"`
	Href      string   `json:"href,omitempty"`
	Classes   []string `json:"classes,omitempty"`
	Important bool     `json:"important,omitempty"`
	Urgent    bool     `json:"urgent,omitempty"`
	Error     bool     `json:"error,omitempty"`
}

type ModuleView struct {
	Name    string    `json:"name"`
	Boxes   []BoxView `json:"boxes"`
	Updated time.Time `json:"updated,omitempty"`
}

type Snapshot struct {
	Line     string       `json:"line"`
	Expanded string       `json:"expanded"`
	Renders  uint64       `json:"renders"`
	Modules  []ModuleView `json:"modules"`
}

func (b *Bar) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := Snapshot{
		Line:     b.lineLocked(false),
		Expanded: b.lineLocked(true),
		Renders:  b.renders,
		Modules:  make([]ModuleView, 0, len(b.slots)),
	}
	for _, s := range b.slots {
		mv := ModuleView{Name: s.name, Updated: s.updated, Boxes: make([]BoxView, 0, len(s.boxes))}
		for _, bx := range s.boxes {
			mv.Boxes = append(mv.Boxes, BoxView{
				Text:      bx.text,
				Expanded:  bx.expanded(),
				Href:      bx.href,
				Classes:   slices.Clone(bx.classes),
				Important: bx.important,
				Urgent:    bx.urgent,
				Error:     bx.err,
			})
		}
		out.Modules = append(out.Modules, mv)
	}
	return out
}
