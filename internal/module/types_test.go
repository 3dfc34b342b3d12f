package module

import (
	"maps"
	"testing"
)

func TestExtensionText(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		value string
		ext   Extension
		want  string
	}{
		{name: "keep", value: "v", ext: Extension{}, want: ""},
		{name: "clear", value: "v", ext: Clear(), want: ""},
		{name: "details", value: "v", ext: Details("a", "b"), want: "a | b"},
		{name: "truncated", value: "Meeting with" + Ellipsis, ext: Truncated(" the team"), want: "Meeting with the team"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ext.Text(tt.value, " | "); got != tt.want {
				t.Fatalf("Text = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTruncateItem(t *testing.T) {
	t.Parallel()
	it := TruncateItem("héllo world", 6)
	if it.Value != "héllo"+Ellipsis {
		t.Fatalf("Value = %q", it.Value)
	}
	if it.Extension.Kind != ExtTruncated || it.Extension.Text(it.Value, "") != "héllo world" {
		t.Fatalf("Extension = %+v", it.Extension)
	}
	if short := TruncateItem("ok", 6); short.Value != "ok" || short.Extension.Kind != ExtKeep {
		t.Fatalf("short = %+v", short)
	}
}

func TestDefaultsMerge(t *testing.T) {
	t.Parallel()
	template := map[string]string{"a": "1", "b": "2"}
	stored := map[string]string{"b": "20", "c": "30"}
	tests := []struct {
		strategy MergeStrategy
		stored   map[string]string
		want     map[string]string
	}{
		{DefaultWithStoredExclusive, stored, map[string]string{"a": "1", "b": "20"}},
		{DefaultWithStoredMerged, stored, map[string]string{"a": "1", "b": "20", "c": "30"}},
		{StoredOrDefault, stored, map[string]string{"b": "20", "c": "30"}},
		{StoredOrDefault, nil, map[string]string{"a": "1", "b": "2"}},
	}
	for _, tt := range tests {
		got := Defaults{Strategy: tt.strategy, Template: template}.Merge(tt.stored)
		if !maps.Equal(got, tt.want) {
			t.Fatalf("%s: got %v, want %v", tt.strategy, got, tt.want)
		}
	}
	if template["b"] != "2" {
		t.Fatal("template mutated")
	}
}
