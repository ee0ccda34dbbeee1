package db

import "testing"

func TestIsSystemSchema(t *testing.T) {
	for _, name := range []string{"mysql", "information_schema", "performance_schema", "sys"} {
		if !IsSystemSchema(name) {
			t.Fatalf("%s should be a system schema", name)
		}
	}
	if IsSystemSchema("wordpress") {
		t.Fatalf("wordpress is not a system schema")
	}
}

func TestDatabaseAbsent(t *testing.T) {
	cases := []struct {
		output string
		absent bool
	}{
		{"mariadb-admin: DROP DATABASE wp failed; error: 'Can't drop database 'wp'; database doesn't exist'", true},
		{"ERROR 1049 (42000): Unknown database 'wp'", true},
		{"ERROR 1045 (28000): Access denied for user", false},
	}
	for _, tc := range cases {
		if got := databaseAbsent([]byte(tc.output)); got != tc.absent {
			t.Fatalf("databaseAbsent(%q) = %v, want %v", tc.output, got, tc.absent)
		}
	}
}
