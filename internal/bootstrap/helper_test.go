package bootstrap

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"
)

const helperEnv = "VOICED_WANT_HELPER_PROCESS"

// helperArgv re-executes the test binary as a fake child process.
func helperArgv(mode ...string) []string {
	return append([]string{os.Args[0], "-test.run=TestHelperProcess", "--"}, mode...)
}

func helperEnvMap() map[string]string { return map[string]string{helperEnv: "1"} }

func TestHelperProcess(t *testing.T) {
	if os.Getenv(helperEnv) != "1" {
		return
	}
	args := os.Args
	for len(args) > 0 {
		if args[0] == "--" {
			args = args[1:]
			break
		}
		args = args[1:]
	}
	if len(args) == 0 {
		os.Exit(2)
	}
	switch args[0] {
	case "exit":
		code, _ := strconv.Atoi(args[1])
		os.Exit(code)
	case "env":
		for _, k := range args[1:] {
			if v, ok := os.LookupEnv(k); ok {
				fmt.Printf("%s=%s\n", k, v)
			} else {
				fmt.Printf("%s=<unset>\n", k)
			}
		}
		os.Exit(0)
	case "args":
		for _, a := range args[1:] {
			fmt.Println(a)
		}
		os.Exit(0)
	case "sleep":
		time.Sleep(time.Minute)
		os.Exit(0)
	case "fail":
		fmt.Fprintln(os.Stderr, "Traceback (most recent call last):")
		fmt.Fprintln(os.Stderr, "RuntimeError: model weights missing")
		os.Exit(1)
	}
	os.Exit(2)
}

// logLines decodes JSON log output, one object per line.
func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	dec := json.NewDecoder(bytes.NewReader(buf.Bytes()))
	for dec.More() {
		var m map[string]any
		if err := dec.Decode(&m); err != nil {
			t.Fatalf("decode log line: %v\n%s", err, buf.String())
		}
		out = append(out, m)
	}
	return out
}

func linesWithLevel(lines []map[string]any, level string) []map[string]any {
	var out []map[string]any
	for _, l := range lines {
		if l["level"] == level {
			out = append(out, l)
		}
	}
	return out
}

func findLine(lines []map[string]any, key, val string) map[string]any {
	for _, l := range lines {
		if l[key] == val {
			return l
		}
	}
	return nil
}
