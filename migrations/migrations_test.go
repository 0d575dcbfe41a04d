package migrations_test

import (
	"strings"
	"testing"

	"github.com/wajahatashraf/beacon-scraper/migrations"
)

func TestUpOrder(t *testing.T) {
	names, err := migrations.Up()
	if err != nil {
		t.Fatalf("Up: %v", err)
	}
	if len(names) != 2 || names[0] != "001_init_extensions.sql" || names[1] != "002_scrape_runs.sql" {
		t.Errorf("Up() = %v", names)
	}
	sql, err := migrations.Read(names[1])
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !strings.Contains(sql, "PRIMARY KEY (target, layer_id)") {
		t.Error("scrape_runs must be keyed by target and layer")
	}
}

func TestDown(t *testing.T) {
	names, err := migrations.Down()
	if err != nil {
		t.Fatalf("Down: %v", err)
	}
	if len(names) != 1 || names[0] != "002_scrape_runs.down.sql" {
		t.Errorf("Down() = %v", names)
	}
}
