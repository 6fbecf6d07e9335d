// Package testutil provides shared test helpers for setting up databases and taxonomies.
package testutil

import (
	"os"
	"testing"

	"github.com/stalvia/pricewatch/internal/store"
	"github.com/stalvia/pricewatch/internal/taxonomy"
)

// TestStore creates a temporary SQLite store that is automatically cleaned up.
// maxBatchOps <= 0 uses the default per-commit ceiling.
func TestStore(t *testing.T, maxBatchOps int) *store.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "pricewatch-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := store.Open(dbFile.Name(), maxBatchOps)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestTaxonomy builds a small grocery taxonomy shared by tests:
//
//	alimentacion > aceites > aceites-oliva
//	alimentacion > conservas
//	bebidas > aguas
func TestTaxonomy(t *testing.T) *taxonomy.Store {
	t.Helper()
	tax, err := taxonomy.New([]taxonomy.Node{
		{ID: "alimentacion", Name: "Alimentación"},
		{ID: "aceites", Name: "Aceites", ParentID: "alimentacion", Keywords: []string{"aceite", "oliva"}},
		{ID: "aceites-oliva", Name: "Aceite de oliva", ParentID: "aceites"},
		{ID: "conservas", Name: "Conservas", ParentID: "alimentacion", Keywords: []string{"lata"}},
		{ID: "bebidas", Name: "Bebidas"},
		{ID: "aguas", Name: "Aguas", ParentID: "bebidas", Keywords: []string{"agua"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	return tax
}
