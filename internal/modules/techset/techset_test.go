package techset

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDocs struct {
	doc   catalogDoc
	found bool
	err   error
	calls int
}

func (f *fakeDocs) Get(_ context.Context, _ string, _ string, out interface{}) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	*out.(*catalogDoc) = f.doc
	return f.found, nil
}

func catalogWith(pairs ...string) catalogDoc {
	var doc catalogDoc
	for i := 0; i+1 < len(pairs); i += 2 {
		doc.Items = append(doc.Items, struct {
			ID   string `bson:"id"   json:"id"`
			Name string `bson:"name" json:"name"`
		}{ID: pairs[i], Name: pairs[i+1]})
	}
	return doc
}

func TestLookupAfterLoad(t *testing.T) {
	docs := &fakeDocs{doc: catalogWith("ts", "TypeScript", "go", "Go"), found: true}
	c := New(docs, nil)

	require.NoError(t, c.Load(context.Background()))
	assert.Equal(t, StatusLoaded, c.Status())

	assert.Equal(t, "TypeScript", c.Lookup(context.Background(), "ts"))
	assert.Equal(t, "Go", c.Lookup(context.Background(), "go"))
	// Unknown ids fall back to the raw id.
	assert.Equal(t, "rust", c.Lookup(context.Background(), "rust"))
}

func TestLookupTriggersLazyLoad(t *testing.T) {
	docs := &fakeDocs{doc: catalogWith("ts", "TypeScript"), found: true}
	c := New(docs, nil)

	// First lookup kicks off the background load and degrades to the raw id.
	assert.Equal(t, "ts", c.Lookup(context.Background(), "ts"))

	assert.Eventually(t, func() bool {
		return c.Lookup(context.Background(), "ts") == "TypeScript"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLoadFailureFallsBackToRawIds(t *testing.T) {
	docs := &fakeDocs{err: errors.New("connection reset")}
	c := New(docs, nil)

	require.Error(t, c.Load(context.Background()))
	assert.Equal(t, StatusError, c.Status())
	assert.Equal(t, "ts", c.Lookup(context.Background(), "ts"))
}

func TestMissingCatalogLoadsEmpty(t *testing.T) {
	docs := &fakeDocs{found: false}
	c := New(docs, nil)

	require.NoError(t, c.Load(context.Background()))
	assert.Equal(t, StatusLoaded, c.Status())
	assert.Equal(t, "ts", c.Lookup(context.Background(), "ts"))
	// The catalog is only fetched once.
	assert.Equal(t, 1, docs.calls)
}
