package repository

import (
	"testing"

	"github.com/bsocio/campaign-service/internal/audience"
)

func TestPageQueryMatchAll(t *testing.T) {
	q, args := pageQuery(audience.Filter{}, 0, 50)

	want := `SELECT ` + userColumns + ` FROM users WHERE id > $1 ORDER BY id ASC LIMIT $2`
	if q != want {
		t.Errorf("query = %q, want %q", q, want)
	}
	if len(args) != 2 || args[0] != int64(0) || args[1] != 50 {
		t.Errorf("args = %v", args)
	}
}

func TestPageQueryWithFilterShiftsPlaceholders(t *testing.T) {
	f := audience.Filter{Role: "USER", Gender: "male"}
	q, args := pageQuery(f, 120, 50)

	want := `SELECT ` + userColumns + ` FROM users WHERE id > $1 AND role = $2 AND gender = $3 ORDER BY id ASC LIMIT $4`
	if q != want {
		t.Errorf("query = %q, want %q", q, want)
	}
	if len(args) != 4 {
		t.Fatalf("args = %v, want 4", args)
	}
	if args[0] != int64(120) || args[1] != "USER" || args[2] != "male" || args[3] != 50 {
		t.Errorf("args = %v", args)
	}
}

func TestPageQueryManualIDs(t *testing.T) {
	f := audience.Filter{IDs: []int64{5, 9}}
	q, args := pageQuery(f, 0, 10)

	want := `SELECT ` + userColumns + ` FROM users WHERE id > $1 AND id = ANY($2) ORDER BY id ASC LIMIT $3`
	if q != want {
		t.Errorf("query = %q, want %q", q, want)
	}
	if len(args) != 3 {
		t.Errorf("args = %v, want 3", args)
	}
}
