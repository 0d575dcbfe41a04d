package targets_test

import (
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/wajahatashraf/beacon-scraper/internal/adapters/targets"
)

const sample = "\xef\xbb\xbfWebsite URL,County Name\n" +
	"https://beacon.example/?AppID=1,Cass County IL\n" +
	",Empty County\n" +
	"https://beacon.example/?AppID=2, Scott County IA \n"

func TestFile_Load(t *testing.T) {
	fs := afero.NewMemMapFs()
	_ = afero.WriteFile(fs, "counties.csv", []byte(sample), 0o644)

	got, err := targets.Open(fs, "counties.csv").Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 targets, got %v", got)
	}
	if got[0].Name != "Cass County IL" || got[0].URL != "https://beacon.example/?AppID=1" {
		t.Errorf("first target %+v", got[0])
	}
	if got[1].Name != "Scott County IA" {
		t.Errorf("names must be trimmed, got %q", got[1].Name)
	}
}

func TestFile_Load_MissingColumns(t *testing.T) {
	fs := afero.NewMemMapFs()
	_ = afero.WriteFile(fs, "bad.csv", []byte("url,name\nx,y\n"), 0o644)
	if _, err := targets.Open(fs, "bad.csv").Load(); err == nil {
		t.Error("expected an error for missing columns")
	}
}

func TestFile_RecordError(t *testing.T) {
	fs := afero.NewMemMapFs()
	_ = afero.WriteFile(fs, "counties.csv", []byte(sample), 0o644)
	f := targets.Open(fs, "counties.csv")

	if err := f.RecordError("cass county il", "No zoning layers found."); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := f.RecordError("Unknown County", "extent resolution failed"); err != nil {
		t.Fatalf("record new row: %v", err)
	}

	data, _ := afero.ReadFile(fs, "counties.csv")
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected header plus 4 rows, got %q", lines)
	}
	if lines[0] != "Website URL,County Name,error_message" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "https://beacon.example/?AppID=1,Cass County IL,No zoning layers found." {
		t.Errorf("row 1 = %q", lines[1])
	}
	if lines[4] != ",Unknown County,extent resolution failed" {
		t.Errorf("appended row = %q", lines[4])
	}

	// The rewritten file still loads.
	got, err := f.Load()
	if err != nil || len(got) != 2 {
		t.Errorf("reload: %v %v", got, err)
	}
}
