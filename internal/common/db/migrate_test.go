package db_test

import (
	"context"
	"testing"

	"itsm/internal/common/db"
	"itsm/internal/common/db/dbtest"
)

func TestMigrateSeedsReferenceTables(t *testing.T) {
	database := dbtest.Open(t)

	cases := []struct {
		table string
		want  int64
	}{
		{table: "role", want: 8},
		{table: "priority", want: 4},
		{table: "impact", want: 3},
		{table: "problem_status", want: 4},
	}
	for _, tc := range cases {
		t.Run(tc.table, func(t *testing.T) {
			if got := dbtest.Count(t, database, "SELECT COUNT(*) FROM "+tc.table); got != tc.want {
				t.Fatalf("rows in %s: got %d, want %d", tc.table, got, tc.want)
			}
		})
	}

	version, err := db.Migrate(context.Background(), database)
	if err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if version != 2 {
		t.Fatalf("schema version: got %d, want 2", version)
	}
}
