package cmd

import (
	"testing"
	"time"
)

func TestResolvePollInterval(t *testing.T) {
	tests := []struct {
		name    string
		flag    string
		want    time.Duration
		wantErr bool
	}{
		{"empty uses config", "", 5 * time.Minute, false},
		{"minutes", "10m", 10 * time.Minute, false},
		{"seconds", "30s", 30 * time.Second, false},
		{"invalid", "soon", 0, true},
		{"zero", "0s", 0, true},
		{"negative", "-1m", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolvePollInterval(tt.flag, 5*time.Minute)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %q", tt.flag)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("resolvePollInterval(%q) = %v, want %v", tt.flag, got, tt.want)
			}
		})
	}
}

func TestPollCmdHasFlags(t *testing.T) {
	for _, name := range []string{"watch", "interval"} {
		if pollCmd.Flags().Lookup(name) == nil {
			t.Errorf("poll command missing --%s flag", name)
		}
	}
}

func TestPollCmdRequiresProject(t *testing.T) {
	if err := pollCmd.Args(pollCmd, nil); err == nil {
		t.Error("expected error when no project ID is given")
	}
}

func TestShortHashAndFirstLine(t *testing.T) {
	if got := shortHash("0123456789abcdef"); got != "0123456" {
		t.Errorf("shortHash = %q", got)
	}
	if got := shortHash("abc"); got != "abc" {
		t.Errorf("shortHash short = %q", got)
	}
	if got := firstLine("fix: bug\n\nlonger body"); got != "fix: bug" {
		t.Errorf("firstLine = %q", got)
	}
}

func TestValidateProjectInput(t *testing.T) {
	tests := []struct {
		name    string
		pname   string
		url     string
		wantErr bool
	}{
		{"valid", "demo", "https://github.com/acme/demo", false},
		{"blank name", "  ", "https://github.com/acme/demo", true},
		{"not github", "demo", "https://gitlab.com/acme/demo", true},
		{"missing repo", "demo", "https://github.com/acme", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateProjectInput(tt.pname, tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateProjectInput(%q, %q) error = %v, wantErr %v", tt.pname, tt.url, err, tt.wantErr)
			}
		})
	}
}
