package format

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"

	"capset/internal/events"
)

func TestJSONFormatterIndent(t *testing.T) {
	var buf bytes.Buffer
	if err := (JSONFormatter{Indent: "  "}).Write(&buf, map[string]int{"a": 1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if buf.String() != "{\n  \"a\": 1\n}\n" {
		t.Fatalf("unexpected output %q", buf.String())
	}

	buf.Reset()
	if err := (JSONFormatter{}).Write(&buf, []string{"x"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if buf.String() != "[\"x\"]\n" {
		t.Fatalf("unexpected compact output %q", buf.String())
	}
}

func TestEventLines(t *testing.T) {
	tests := []struct {
		name string
		ev   events.Event
		want []string
	}{
		{
			name: "progress with fraction",
			ev:   events.ProgressAt("added caption \"cat\"", 0, 2),
			want: []string{"[ 50%] added caption \"cat\""},
		},
		{
			name: "progress without fraction",
			ev:   events.Progress("compacted 2 history entries and 0 blobs"),
			want: []string{"  compacted 2 history entries and 0 blobs"},
		},
		{
			name: "failure",
			ev: events.Failure("add tags: im-x:pet: image im-x: not found", "not_found",
				map[string]string{"tag": "pet", "image_id": "im-x"}, "list the dataset to find valid ids", nil),
			want: []string{
				"error [not_found]: add tags: im-x:pet: image im-x: not found",
				"  image_id=im-x",
				"  tag=pet",
				"hint: list the dataset to find valid ids",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EventLines(tt.ev)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestRecordFlattensCause(t *testing.T) {
	rec := Record(events.Failure("boom", "store_failure", nil, "", errors.New("disk full")))
	if rec.Kind != "failure" || rec.Cause != "disk full" || rec.Code != "store_failure" {
		t.Fatalf("unexpected record %+v", rec)
	}

	var buf bytes.Buffer
	if err := (JSONFormatter{}).Write(&buf, Record(events.ProgressAt("step", 1, 4))); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.Contains(buf.String(), `"progress":0.5`) || strings.Contains(buf.String(), `"code"`) {
		t.Fatalf("unexpected progress json %s", buf.String())
	}
}
