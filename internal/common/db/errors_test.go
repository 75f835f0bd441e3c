package db_test

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"itsm/internal/common/db"
	"itsm/internal/common/db/dbtest"
	"itsm/pkg/repository"

	"github.com/go-sql-driver/mysql"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{name: "no rows", err: sql.ErrNoRows, want: repository.ErrNotFound},
		{name: "mysql duplicate", err: &mysql.MySQLError{Number: 1062}, want: repository.ErrConflict},
		{name: "mysql row referenced", err: &mysql.MySQLError{Number: 1451}, want: repository.ErrConflict},
		{name: "mysql missing parent", err: &mysql.MySQLError{Number: 1452}, want: repository.ErrConflict},
		{name: "mysql lock wait", err: &mysql.MySQLError{Number: 1205}, want: repository.ErrTimeout},
		{name: "deadline", err: fmt.Errorf("query failed: %w", context.DeadlineExceeded), want: repository.ErrTimeout},
		{name: "bad conn", err: driver.ErrBadConn, want: repository.ErrConnectionFailed},
		{name: "invalid conn", err: mysql.ErrInvalidConn, want: repository.ErrConnectionFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := db.Classify(tc.err)
			if !errors.Is(got, tc.want) {
				t.Fatalf("Classify(%v) = %v, want %v", tc.err, got, tc.want)
			}
			if !errors.Is(got, tc.err) {
				t.Fatalf("Classify dropped the cause: %v", got)
			}
			if again := db.Classify(got); again != got {
				t.Fatalf("Classify is not idempotent: %v", again)
			}
		})
	}

	plain := errors.New("boom")
	if got := db.Classify(plain); got != plain {
		t.Fatalf("unknown errors must pass through, got %v", got)
	}
	if db.Classify(nil) != nil {
		t.Fatal("nil must stay nil")
	}
}

func TestClassifySQLiteConstraints(t *testing.T) {
	database := dbtest.Open(t)
	ctx := context.Background()

	_, err := database.Exec(ctx, "INSERT INTO role (id, name) VALUES (1, 'duplicate')")
	if !db.IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}
	if !errors.Is(db.Classify(err), repository.ErrConflict) {
		t.Fatalf("expected conflict, got %v", db.Classify(err))
	}

	_, err = database.Exec(ctx, "INSERT INTO employee (name, email, role_id) VALUES ('x', '', 99)")
	if !db.IsForeignKeyViolation(err) {
		t.Fatalf("expected foreign key violation, got %v", err)
	}
}
