package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forbearing/docsession/session"
)

type testAuthor struct {
	ID   string `bson:"_id" session:"identity"`
	Name string `bson:"name"`
}

type testChapter struct {
	ID   string `bson:"_id" session:"identity"`
	Text string `bson:"text"`
}

type testBook struct {
	ID       string         `bson:"_id" session:"identity"`
	Title    string         `bson:"title"`
	Author   *testAuthor    `bson:"author" session:"ref"`
	Tags     []string       `bson:"tags" session:"embedded"`
	Chapters []*testChapter `bson:"chapters" session:"cascade=save|remove"`
}

func newTestRegistry() *Registry {
	reg := NewRegistry(0)
	reg.Register((*testAuthor)(nil), New(1, (*testAuthor)(nil), UUIDGenerator{}, reg))
	reg.Register((*testChapter)(nil), New(2, (*testChapter)(nil), UUIDGenerator{}, reg))
	reg.Register((*testBook)(nil), New(3, (*testBook)(nil), UUIDGenerator{}, reg))
	return reg
}

func TestReflectMapping_IdentityRoundTrip(t *testing.T) {
	reg := newTestRegistry()
	m, ok := reg.GetMappingForConstructor((*testBook)(nil))
	require.True(t, ok)

	b := &testBook{}
	assert.Nil(t, m.IdentityOf(b))

	m.SetIdentity(b, "abc123")
	assert.Equal(t, "abc123", m.IdentityOf(b))

	m.ClearIdentity(b)
	assert.Nil(t, m.IdentityOf(b))
}

func TestReflectMapping_WalkCascadeAndReferences(t *testing.T) {
	reg := newTestRegistry()
	bm, ok := reg.GetMappingForConstructor((*testBook)(nil))
	require.True(t, ok)

	author := &testAuthor{ID: "author-1", Name: "Ada"}
	chapter := &testChapter{ID: "chapter-1", Text: "intro"}
	book := &testBook{
		ID:       "book-1",
		Title:    "Example",
		Author:   author,
		Tags:     []string{"fiction", "short"},
		Chapters: []*testChapter{chapter},
	}

	var entities, embedded []any
	var refs []*session.Reference
	err := bm.Walk(book, session.FlagCascadeSave, &entities, &embedded, &refs)
	require.NoError(t, err)

	require.Len(t, entities, 1)
	assert.Same(t, chapter, entities[0])

	require.Len(t, refs, 1)
	assert.Equal(t, "author-1", refs[0].Identity())

	require.Len(t, embedded, 1)
	assert.Equal(t, []string{"fiction", "short"}, embedded[0])
}

func TestReflectMapping_WalkSkipsNonMatchingCascade(t *testing.T) {
	reg := newTestRegistry()
	bm, ok := reg.GetMappingForConstructor((*testBook)(nil))
	require.True(t, ok)

	book := &testBook{
		ID:       "book-2",
		Chapters: []*testChapter{{ID: "chapter-2"}},
	}

	var entities, embedded []any
	var refs []*session.Reference
	err := bm.Walk(book, session.FlagCascadeRefresh, &entities, &embedded, &refs)
	require.NoError(t, err)
	assert.Empty(t, entities)
}

func TestRegistry_UnknownType(t *testing.T) {
	reg := NewRegistry(0)
	_, ok := reg.GetMappingForObject(&testAuthor{})
	assert.False(t, ok)
}
