package pipeline

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func samplePipeline() *Pipeline {
	return &Pipeline{
		Stages: []Command{
			{Tool: "partclone.ext4", Args: []string{"-c", "-q", "-s", "{source}", "-o", "-"}},
			{Tool: "zstd", Args: []string{"-q", "-{level}", "-T0", "-c"}},
		},
		Output: "{dest}/sdb1.clone.zst",
	}
}

func TestRender(t *testing.T) {
	rendered, err := samplePipeline().Render(map[string]string{
		"source": "/dev/sdb1",
		"dest":   "/backups/20230315-120000/part1",
		"level":  "3",
	})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got := rendered.Stages[0].Args[3]; got != "/dev/sdb1" {
		t.Errorf("source arg = %q", got)
	}
	if got := rendered.Stages[1].Args[1]; got != "-3" {
		t.Errorf("level arg = %q", got)
	}
	if got := rendered.Output; got != "/backups/20230315-120000/part1/sdb1.clone.zst" {
		t.Errorf("output = %q", got)
	}
}

func TestRender_LeavesTemplateUntouched(t *testing.T) {
	tpl := samplePipeline()
	_, err := tpl.Render(map[string]string{"source": "a", "dest": "b", "level": "1"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !reflect.DeepEqual(tpl, samplePipeline()) {
		t.Error("Render mutated the template")
	}
}

func TestRender_UnboundPlaceholderFails(t *testing.T) {
	_, err := samplePipeline().Render(map[string]string{"source": "/dev/sdb1"})
	if !errors.Is(err, ErrRender) {
		t.Fatalf("Render() error = %v, want ErrRender", err)
	}
	if !strings.Contains(err.Error(), "level") && !strings.Contains(err.Error(), "dest") {
		t.Errorf("error does not name the unbound placeholder: %v", err)
	}
}

func TestRender_UnusedBindingsAllowed(t *testing.T) {
	p := &Pipeline{Stages: []Command{{Tool: "mkswap", Args: []string{"-U", "{uuid}", "{dest}"}}}}
	rendered, err := p.Render(map[string]string{
		"uuid":   "9e2aa9f1-6b66-4d7a-a2ad-216a45b41b04",
		"dest":   "/dev/sdc2",
		"source": "/unused",
	})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	want := []string{"-U", "9e2aa9f1-6b66-4d7a-a2ad-216a45b41b04", "/dev/sdc2"}
	if !reflect.DeepEqual(rendered.Stages[0].Args, want) {
		t.Errorf("args = %v, want %v", rendered.Stages[0].Args, want)
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	tpl := samplePipeline()
	decoded, err := Decode(Encode(tpl))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !reflect.DeepEqual(decoded, tpl) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", decoded, tpl)
	}
}

func TestEncodeDecode_None(t *testing.T) {
	data := Encode(nil)
	if strings.TrimSpace(string(data)) != None {
		t.Fatalf("Encode(nil) = %q, want None", data)
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode(None) error = %v", err)
	}
	if decoded != nil {
		t.Errorf("Decode(None) = %+v, want nil", decoded)
	}
}

func TestDecode_Garbage(t *testing.T) {
	if _, err := Decode([]byte("nonsense")); err == nil {
		t.Error("expected error decoding garbage")
	}
	if _, err := Decode([]byte("{}")); err == nil {
		t.Error("expected error decoding pipeline with no stages")
	}
}

func TestTools(t *testing.T) {
	got := samplePipeline().Tools()
	want := []string{"partclone.ext4", "zstd"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tools() = %v, want %v", got, want)
	}
}

func TestString(t *testing.T) {
	s := samplePipeline().String()
	if !strings.Contains(s, "partclone.ext4 -c -q -s {source} -o -") ||
		!strings.Contains(s, " | zstd") ||
		!strings.Contains(s, "> {dest}/sdb1.clone.zst") {
		t.Errorf("String() = %q", s)
	}
}
