package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func TestVersionString(t *testing.T) {
	tests := []struct {
		name    string
		version string
		commit  string
		want    string
	}{
		{name: "empty defaults to dev", version: "", commit: "", want: "dev"},
		{name: "unknown commit ignored", version: "0.4.0", commit: "unknown", want: "0.4.0"},
		{name: "commit appended", version: "v0.4.0", commit: "9f1c2e", want: "v0.4.0+9f1c2e"},
		{name: "commit already in version", version: "v0.4.0-9f1c2e", commit: "9f1c2e", want: "v0.4.0-9f1c2e"},
	}

	origVersion, origCommit := version, commit
	t.Cleanup(func() {
		version, commit = origVersion, origCommit
	})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version = tt.version
			commit = tt.commit
			if got := versionString(); got != tt.want {
				t.Fatalf("versionString() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRun_ExitCodes(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := run(context.Background(), []string{"--version"}, &out, &errOut); code != 0 {
		t.Fatalf("--version exit = %d", code)
	}
	if !strings.HasPrefix(out.String(), "rootsense ") {
		t.Fatalf("version output = %q", out.String())
	}

	out.Reset()
	errOut.Reset()
	if code := run(context.Background(), []string{"no-such-command"}, &out, &errOut); code != 1 {
		t.Fatalf("unknown command exit = %d", code)
	}
	if errOut.Len() == 0 {
		t.Fatal("expected an error message on stderr")
	}

	errOut.Reset()
	missing := filepath.Join(t.TempDir(), "missing.yml")
	if code := run(context.Background(), []string{"--config", missing, "check"}, &out, &errOut); code != 1 {
		t.Fatalf("check with bad config exit = %d", code)
	}
	if !strings.Contains(errOut.String(), "read config") {
		t.Fatalf("stderr = %q", errOut.String())
	}
}
