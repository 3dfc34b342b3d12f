package module

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"
)

// Ellipsis ends a value that was cut short; the rest lives in a Truncated
// extension and the renderer drops the ellipsis when showing both.
const Ellipsis = "…"

// ExtensionKind tags how an Item's extension should be treated.
type ExtensionKind uint8

const (
	// ExtKeep (the zero value) keeps whatever extension was shown before.
	ExtKeep ExtensionKind = iota
	// ExtTruncated: Value was cut; expanded text is Value without the
	// ellipsis followed by Rest, no separator.
	ExtTruncated
	// ExtDetails: Value is complete; Details are extra, separator-joined.
	ExtDetails
	// ExtClear removes the previous extension.
	ExtClear
)

// Extension is extra, non-essential information attached to an Item.
type Extension struct {
	Kind    ExtensionKind `json:"kind"`
	Rest    string        `json:"rest,omitempty"`
	Details []string      `json:"details,omitempty"`
}

func Truncated(rest string) Extension { return Extension{Kind: ExtTruncated, Rest: rest} }
func Details(d ...string) Extension   { return Extension{Kind: ExtDetails, Details: d} }
func Clear() Extension                { return Extension{Kind: ExtClear} }

// Text renders the extension for an expanded view of value.
func (e Extension) Text(value, sep string) string {
	switch e.Kind {
	case ExtTruncated:
		return strings.TrimSuffix(value, Ellipsis) + e.Rest
	case ExtDetails:
		return strings.Join(e.Details, sep)
	default:
		return ""
	}
}

// Item is one status value shown in the bar.
type Item struct {
	Value      string    `json:"value"`
	Extension  Extension `json:"extension"`
	Href       string    `json:"href,omitempty"`
	ClassNames []string  `json:"class_names,omitempty"`
	Important  bool      `json:"important,omitempty"`
	Urgent     bool      `json:"urgent,omitempty"`
}

// TruncateItem returns an item whose value holds at most max runes,
// ellipsis included. Longer values carry the cut tail as a Truncated
// extension.
func TruncateItem(value string, max int) Item {
	if max < 1 || utf8.RuneCountInString(value) <= max {
		return Item{Value: value}
	}
	r := []rune(value)
	return Item{
		Value:     string(r[:max-1]) + Ellipsis,
		Extension: Truncated(string(r[max-1:])),
	}
}

// RefreshResult is what a scheduled module returns from Refresh.
type RefreshResult struct {
	Items []Item
	// ForceNextRefresh, when set, requests an extra forced refresh at that
	// time in addition to the regular schedule.
	ForceNextRefresh time.Time
	// SkipRender leaves the previously rendered items untouched.
	SkipRender bool
}

// RenderFunc displays items for moduleName, or err when the refresh failed.
type RenderFunc func(ctx context.Context, moduleName string, items []Item, err error) error

// Module is implemented by every status module.
type Module interface {
	// Name is unique per loaded module (type name plus "_N" suffix).
	Name() string
	AddNameSuffix(suffix string)
	Defaults() Defaults
	Configure(cfg map[string]string) error
}

// Scheduled modules are refreshed by the scheduler.
type Scheduled interface {
	Module
	// Interval is the refresh period; 0 means every tick.
	Interval() time.Duration
	// Refresh produces new items. forced is true for the initial render and
	// for refreshes requested via ForceNextRefresh.
	Refresh(ctx context.Context, forced bool) (RefreshResult, error)
}

// Push modules decide themselves when to render.
type Push interface {
	Module
	// Bind renders the start value right away and keeps render for later
	// pushes. Pushing stops when ctx is done.
	Bind(ctx context.Context, render RenderFunc) error
}

// Base carries the module name. Embed it to get Name and AddNameSuffix.
type Base struct {
	name string
}

func NewBase(name string) Base { return Base{name: name} }

func (b *Base) Name() string { return b.name }

func (b *Base) AddNameSuffix(suffix string) { b.name = b.name + "_" + suffix }
