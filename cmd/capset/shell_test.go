package main

import (
	"strings"
	"testing"
)

func TestShellRunsLinesAgainstOneDataset(t *testing.T) {
	env := newCLIEnv(t)

	script := strings.Join([]string{
		"# comment lines are ignored",
		`caption add "a cat" "a dog"`,
		"undo",
		"redo",
		"history",
		"metrics",
		"exit",
		"caption add never-run",
	}, "\n")

	stdout, stderr, err := env.run(t, script, "shell", "--prompt", "")
	if err != nil {
		t.Fatalf("shell: %v (stderr: %s)", err, stderr)
	}

	for _, want := range []string{
		"done: Add 2 captions",
		"undone: Add 2 captions",
		"redone: Add 2 captions",
		"capset_model_operations_total",
	} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("expected %q in output:\n%s", want, stdout)
		}
	}
	if !strings.Contains(stderr, "[100%]") {
		t.Fatalf("expected progress events, got %q", stderr)
	}

	out := env.mustRun(t, "caption", "list")
	if strings.Contains(out, "never-run") {
		t.Fatalf("expected lines after exit to be ignored, got %q", out)
	}
	if strings.Count(out, "\n") != 2 {
		t.Fatalf("expected two captions, got %q", out)
	}
}

func TestShellFlagsDoNotLeakBetweenLines(t *testing.T) {
	env := newCLIEnv(t)

	script := "caption add x --json\ncaption add y\n"
	stdout, stderr, err := env.run(t, script, "shell", "--prompt", "")
	if err != nil {
		t.Fatalf("shell: %v (stderr: %s)", err, stderr)
	}

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	last := lines[len(lines)-1]
	if !strings.HasPrefix(last, "done: ") {
		t.Fatalf("expected plain output after a --json line, got %q", last)
	}
	if !strings.Contains(stdout, `"op": "execute"`) && !strings.Contains(stdout, `"op":"execute"`) {
		t.Fatalf("expected JSON output for the first line, got %q", stdout)
	}
}

func TestShellReportsFailuresOnce(t *testing.T) {
	env := newCLIEnv(t)

	script := "caption modify cp-missing x\ncaption add\nbogus\n"
	_, stderr, err := env.run(t, script, "shell", "--prompt", "")
	if err != nil {
		t.Fatalf("shell: %v", err)
	}

	if got := strings.Count(stderr, "error [not_found]"); got != 1 {
		t.Fatalf("expected one not_found report, got %d in %q", got, stderr)
	}
	if !strings.Contains(stderr, "caption text is required") {
		t.Fatalf("expected argument error, got %q", stderr)
	}
	if !strings.Contains(stderr, `unknown command "bogus"`) {
		t.Fatalf("expected unknown command error, got %q", stderr)
	}
}

func TestShellRejectsUnbalancedQuotes(t *testing.T) {
	env := newCLIEnv(t)

	_, stderr, err := env.run(t, "caption add \"open\n", "shell", "--prompt", "")
	if err != nil {
		t.Fatalf("shell: %v", err)
	}
	if !strings.Contains(stderr, "parse line") {
		t.Fatalf("expected parse error, got %q", stderr)
	}
}
