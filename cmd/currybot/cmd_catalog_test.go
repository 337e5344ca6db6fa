package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestCatalogCheckCmd(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		doc      string
		clips    []string
		withDir  bool
		wantErr  string
		wantOut  []string
		skipFile bool
	}{
		{
			name:    "valid catalog",
			doc:     `{"curry time": "curry.mp3", "big boi": "boi.mp3"}`,
			wantOut: []string{"curry time -> curry.mp3\nbig boi -> boi.mp3\n", "2 triggers"},
		},
		{
			name:    "empty key",
			doc:     `{"": "curry.mp3"}`,
			wantErr: "catalog check",
		},
		{
			name:    "not an object",
			doc:     `["curry.mp3"]`,
			wantErr: "not a JSON object",
		},
		{
			name:     "missing file",
			skipFile: true,
			wantErr:  "catalog check",
		},
		{
			name:    "clips present",
			doc:     `{"curry time": "curry.mp3", "big boi": "sub/boi.mp3"}`,
			clips:   []string{"curry.mp3", "sub/boi.mp3"},
			withDir: true,
			wantOut: []string{"2 triggers"},
		},
		{
			name:    "clip missing",
			doc:     `{"curry time": "curry.mp3", "big boi": "boi.mp3"}`,
			clips:   []string{"curry.mp3"},
			withDir: true,
			wantErr: `"big boi"`,
			wantOut: []string{"2 triggers"},
		},
		{
			name:    "clip escapes",
			doc:     `{"escape": "../etc/passwd"}`,
			withDir: true,
			wantErr: "escapes the audio directory",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			path := filepath.Join(dir, "audio.json")
			if !tc.skipFile {
				writeFile(t, path, tc.doc)
			}
			audioDir := filepath.Join(dir, "audio")
			for _, c := range tc.clips {
				writeFile(t, filepath.Join(audioDir, c), "RIFF")
			}

			args := []string{"check", path}
			if tc.withDir {
				args = append(args, "--audio-dir", audioDir)
			}
			cmd := newCatalogCmd()
			var out strings.Builder
			cmd.SetOut(&out)
			cmd.SetErr(&out)
			cmd.SetArgs(args)

			err := cmd.Execute()
			if tc.wantErr == "" && err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if tc.wantErr != "" {
				if err == nil {
					t.Fatalf("Execute succeeded, want error containing %q", tc.wantErr)
				}
				if !strings.Contains(err.Error(), tc.wantErr) {
					t.Errorf("err = %v, want it to contain %q", err, tc.wantErr)
				}
			}
			for _, want := range tc.wantOut {
				if !strings.Contains(out.String(), want) {
					t.Errorf("output %q does not contain %q", out.String(), want)
				}
			}
		})
	}
}
