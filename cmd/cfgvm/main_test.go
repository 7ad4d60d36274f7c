package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zurustar/cfgvm/pkg/app"
	"github.com/zurustar/cfgvm/pkg/cli"
	"github.com/zurustar/cfgvm/pkg/compiler"
)

// runMain はコマンドを実行し、標準出力と終了コードを返す
func runMain(t *testing.T, stdin string, args ...string) (string, int) {
	t.Helper()
	cmd := exec.Command("go", append([]string{"run", "main.go"}, args...)...)
	cmd.Dir = "."
	cmd.Stdin = strings.NewReader(stdin)
	cmd.Env = append(os.Environ(), "LOG_LEVEL=", "CFGVM_MEMORY=", "CFGVM_TIMEOUT=")
	output, err := cmd.Output()

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return string(output), exitErr.ExitCode()
	}
	if err != nil {
		t.Fatalf("failed to run command: %v", err)
	}
	return string(output), 0
}

// TestCLIHelp tests the help display functionality
func TestCLIHelp(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping go run in short mode")
	}

	output, code := runMain(t, "", "--help")
	if code != 0 {
		t.Errorf("Expected exit code 0, got %d", code)
	}
	if !strings.Contains(output, "Usage:") {
		t.Error("Help output should contain Usage section")
	}
	if !strings.Contains(output, "cfgvm [options] <source>") {
		t.Error("Help output should show source usage")
	}
}

// TestExitCode tests the mapping from errors to exit statuses
func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"成功", nil, 0},
		{"引数の誤り", &cli.UsageError{Err: errors.New("source file is required")}, 2},
		{"ラップされた引数の誤り", fmt.Errorf("run: %w", &cli.UsageError{Err: errors.New("bad flag")}), 2},
		{"コンパイルエラー", &compiler.CompileError{Phase: "parser", Message: "syntax", Line: 1}, 1},
		{"その他のエラー", errors.New("boom"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

// TestExitCode_NoArguments tests that running without a source maps to status 2
func TestExitCode_NoArguments(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("CFGVM_MEMORY", "")
	t.Setenv("CFGVM_TIMEOUT", "")

	err := app.New(strings.NewReader(""), io.Discard, io.Discard).Run([]string{})
	if got := exitCode(err); got != 2 {
		t.Errorf("exitCode = %d, want 2 (err: %v)", got, err)
	}
}

// TestCLIExitCodes tests the exit code for each kind of failure
// (go run reports every non-zero child status as 1, so usage errors are covered above)
func TestCLIExitCodes(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping go run in short mode")
	}

	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
		return path
	}

	tests := []struct {
		name       string
		args       []string
		stdin      string
		wantCode   int
		wantOutput string
	}{
		{
			name:       "正常終了",
			args:       []string{write("ok.cfg", "var x; { x = 6 * 7; print x; }")},
			wantCode:   0,
			wantOutput: "42 ",
		},
		{
			name:       "標準入力",
			args:       []string{"-"},
			stdin:      "var x; { x = 1; print x; }",
			wantCode:   0,
			wantOutput: "1 ",
		},
		{
			name:     "コンパイルエラー",
			args:     []string{write("bad.cfg", "{ x = 1; }")},
			wantCode: 1,
		},
		{
			name:       "実行時エラー",
			args:       []string{write("div.cfg", "var x; { x = 2; print x; x = x / 0; }")},
			wantCode:   1,
			wantOutput: "2 ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, code := runMain(t, tt.stdin, tt.args...)
			if code != tt.wantCode {
				t.Errorf("exit code = %d, want %d", code, tt.wantCode)
			}
			if output != tt.wantOutput {
				t.Errorf("stdout = %q, want %q", output, tt.wantOutput)
			}
		})
	}
}
