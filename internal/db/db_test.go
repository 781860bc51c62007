package db

import (
	"strings"
	"testing"

	"github.com/onnwee/commons/migrations"
)

func TestUpFiles_Ordered(t *testing.T) {
	names, err := UpFiles(migrations.FS)
	if err != nil {
		t.Fatalf("UpFiles() error = %v", err)
	}
	want := []string{"000001_entities.up.sql", "000002_events.up.sql", "000003_audit.up.sql"}
	if len(names) != len(want) {
		t.Fatalf("UpFiles() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("UpFiles()[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestMigrations_HaveDownFiles(t *testing.T) {
	names, err := UpFiles(migrations.FS)
	if err != nil {
		t.Fatalf("UpFiles() error = %v", err)
	}
	for _, up := range names {
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		if _, err := migrations.FS.Open(down); err != nil {
			t.Errorf("missing %s for %s", down, up)
		}
	}
}
