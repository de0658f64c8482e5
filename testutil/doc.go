// Package testutil holds fixtures shared by the package tests.
//
// Components are started through T(t).Setup and stopped when the test
// ends:
//
//	func TestWorker(t *testing.T) {
//	    db := testutil.OpenStore(t)
//	    repo := store.NewRepository(db)
//	    ...
//	}
package testutil
