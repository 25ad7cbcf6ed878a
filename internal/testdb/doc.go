//go:build integration

// Package testdb provides PostgreSQL helpers for integration tests.
//
// Tests run against the database named by PAGESCAN_TEST_DB_URL and are
// skipped when it is unset. The schema is migrated once per test binary,
// and each test body runs in its own transaction that is rolled back when
// the test ends:
//
//	func TestPageStore_Create(t *testing.T) {
//	    db := testdb.Open(t)
//	    testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
//	        pages := postgres.NewPostgresPageStore(tx, nil)
//	        // ...
//	    })
//	}
package testdb
