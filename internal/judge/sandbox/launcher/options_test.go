package launcher

import (
	"reflect"
	"testing"
)

func TestArgvParse(t *testing.T) {
	in := Options{CPUTimeMs: 1500, MemoryMB: 256, FileBytes: 1 << 20, MaxProcs: 32, DenyNetwork: true}
	target := []string{"python3", "-u", "main.py", "--", "-x"}

	argv := in.Argv("/usr/local/bin/sandbox-init", target)
	if argv[0] != "/usr/local/bin/sandbox-init" {
		t.Fatalf("argv[0] = %q", argv[0])
	}
	got, gotTarget, err := Parse(argv[1:])
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if got != in {
		t.Fatalf("options = %+v, want %+v", got, in)
	}
	if !reflect.DeepEqual(gotTarget, target) {
		t.Fatalf("target = %v, want %v", gotTarget, target)
	}
}

func TestArgvOmitsUnsetLimits(t *testing.T) {
	argv := Options{}.Argv("init", []string{"java", "Main"})
	want := []string{"init", "--", "java", "Main"}
	if !reflect.DeepEqual(argv, want) {
		t.Fatalf("argv = %v, want %v", argv, want)
	}
}

func TestParseErrors(t *testing.T) {
	if _, _, err := Parse([]string{"--"}); err == nil {
		t.Fatal("expected error without a command")
	}
	if _, _, err := Parse([]string{"-cpu-ms", "abc", "--", "true"}); err == nil {
		t.Fatal("expected error for bad number")
	}
}
