package main

import "testing"

func TestFormatVersion(t *testing.T) {
	tests := []struct {
		name    string
		version string
		commit  string
		want    string
	}{
		{
			name:    "release tag returned as-is",
			version: "v0.3.0",
			commit:  "9f8e7d6c5b4a3210",
			want:    "v0.3.0",
		},
		{
			name:    "dev with commit uses short sha",
			version: "dev",
			commit:  "9f8e7d6c5b4a3210",
			want:    "dev-9f8e7d6",
		},
		{
			name:    "dev with unknown commit",
			version: "dev",
			commit:  "unknown",
			want:    "dev",
		},
		{
			name:    "empty version falls back to dev",
			version: "",
			commit:  "abc1234",
			want:    "dev-abc1234",
		},
		{
			name:    "whitespace trimmed",
			version: "  v1.0.0\n",
			commit:  "",
			want:    "v1.0.0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatVersion(tt.version, tt.commit)
			if got != tt.want {
				t.Fatalf("formatVersion(%q, %q) = %q, want %q", tt.version, tt.commit, got, tt.want)
			}
		})
	}
}
