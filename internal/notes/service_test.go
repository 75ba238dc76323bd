package notes

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeArchiver struct {
	name    string
	payload []byte
	err     error
}

func (f *fakeArchiver) ArchiveCorrupt(_ context.Context, name string, payload []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.name = name
	f.payload = append([]byte(nil), payload...)
	return "backups/corrupt/" + name + ".json", nil
}

func newTestService(t *testing.T) (*Service, *SQLStore) {
	t.Helper()
	store := newTestStore(t)
	svc := NewService(store, 3000)
	n := 0
	svc.newID = func() string {
		n++
		return "new-" + string(rune('a'+n-1))
	}
	return svc, store
}

func TestService_ListSeedsIntroOnce(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	items := svc.List(ctx, "")
	require.Len(t, items, 1)
	require.Equal(t, IntroNoteID, items[0].ID)
	require.Contains(t, items[0].Title, "Welcome to Notelytic")

	intro, err := store.Get(ctx, IntroNoteID)
	require.NoError(t, err)
	require.Contains(t, intro.Content, "<strong>Create or Edit Notes with AI Assistance</strong>")

	require.NoError(t, svc.Delete(ctx, IntroNoteID))
	require.Empty(t, svc.List(ctx, ""), "a deleted intro note must stay deleted")
}

func TestService_EnsureIntroKeepsUserNoteOne(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	mine := Record{Title: "mine", Content: "<p>keep</p>"}
	require.NoError(t, store.Put(ctx, IntroNoteID, mine))

	require.NoError(t, svc.EnsureIntro(ctx))
	got, err := store.Get(ctx, IntroNoteID)
	require.NoError(t, err)
	require.Equal(t, mine, got)
}

func TestService_ListOrdersPinnedFirstAndSearches(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.EnsureIntro(ctx))

	require.NoError(t, store.Put(ctx, "1700000000002", Record{Title: "Groceries", Content: "<p>milk, eggs</p>"}))
	require.NoError(t, store.Put(ctx, "1700000000001", Record{Title: "Trip", Content: "<p>Pack the <b>Passport</b></p>", IsPinned: true}))
	require.NoError(t, store.Put(ctx, "abc", Record{Title: "zeta", Content: "<p>misc</p>"}))

	items := svc.List(ctx, "")
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	require.Equal(t, []string{"1700000000001", "1", "1700000000002", "abc"}, ids)

	found := svc.List(ctx, "PASSPORT")
	require.Len(t, found, 1)
	require.Equal(t, "1700000000001", found[0].ID)

	require.Empty(t, svc.List(ctx, "<p>"), "markup is not searchable text")

	byTitle := svc.List(ctx, "groc")
	require.Len(t, byTitle, 1)
	require.Equal(t, "milk, eggs", byTitle[0].Preview)
}

func TestService_CreateValidates(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	for _, rec := range []Record{
		{Title: "  ", Content: "<p>x</p>"},
		{Title: "t", Content: ""},
		{Title: "t", Content: "<p></p>"},
	} {
		_, err := svc.Create(ctx, rec)
		require.ErrorIs(t, err, ErrEmptyNote, "record %+v", rec)
	}

	long := "<p>" + strings.Repeat("x", 5000) + "</p>"
	id, err := svc.Create(ctx, Record{Title: "long", Content: long})
	require.NoError(t, err, "new notes are not capped")
	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, long, got.Content)
}

func TestService_ReplaceEnforcesCap(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "n", Record{Title: "t", Content: "short"}))

	err := svc.Replace(ctx, "n", Record{Title: "t", Content: strings.Repeat("é", 3001)})
	require.ErrorIs(t, err, ErrContentTooLong)

	require.NoError(t, svc.Replace(ctx, "n", Record{Title: "t", Content: strings.Repeat("é", 3000)}))
	require.ErrorIs(t, svc.Replace(ctx, "missing", Record{}), ErrNotFound)
}

func TestService_DeleteAndPin(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "n", Record{Title: "t", Content: "c"}))

	pinned, err := svc.TogglePin(ctx, "n")
	require.NoError(t, err)
	require.True(t, pinned)
	pinned, err = svc.TogglePin(ctx, "n")
	require.NoError(t, err)
	require.False(t, pinned)

	require.NoError(t, svc.Delete(ctx, "n"))
	require.True(t, errors.Is(svc.Delete(ctx, "n"), ErrNotFound))
	_, err = svc.TogglePin(ctx, "n")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestComputeStats(t *testing.T) {
	s := ComputeStats("<p>héllo   wörld</p>\n<p>again</p>", 3000)
	require.Equal(t, 33, s.Characters)
	require.Equal(t, 3, s.Words)
	require.Equal(t, 3000, s.MaxChars)

	require.Equal(t, Stats{MaxChars: 10}, ComputeStats("", 10))
}

func TestBuildShare(t *testing.T) {
	sh := BuildShare(Record{Title: "Plan", Content: "<p>Buy &amp; sell</p><p>Done</p>"})
	require.Equal(t, "**Plan**\n\nBuy & sell\nDone", sh.Message)
	require.True(t, strings.HasPrefix(sh.URL, ShareBaseURL))

	decoded, err := url.QueryUnescape(strings.TrimPrefix(sh.URL, ShareBaseURL))
	require.NoError(t, err)
	require.Equal(t, sh.Message, decoded)
}

func TestService_Export(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "n", Record{Title: `a/b "c"`, Content: "<p>hi</p><script>x()</script>"}))

	name, ctype, body, err := svc.Export(ctx, "n", "txt", "en")
	require.NoError(t, err)
	require.Equal(t, `a_b _c_.txt`, name)
	require.Equal(t, "text/plain; charset=utf-8", ctype)
	require.Equal(t, "<p>hi</p><script>x()</script>", string(body))

	name, ctype, body, err = svc.Export(ctx, "n", "html", "de")
	require.NoError(t, err)
	require.Equal(t, `a_b _c_.html`, name)
	require.Equal(t, "text/html; charset=utf-8", ctype)
	require.Contains(t, string(body), `<html lang="de">`)
	require.Contains(t, string(body), "<p>hi</p>")
	require.NotContains(t, string(body), "<script>")

	_, _, _, err = svc.Export(ctx, "n", "pdf", "en")
	require.Error(t, err)
	_, _, _, err = svc.Export(ctx, "nope", "txt", "en")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestService_ImportLegacy(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "5", Record{Title: "existing", Content: "keep"}))

	payload := []byte(`{
		"5": {"title": "changed", "content": "x"},
		"1700000000000": {"title": "Old", "content": "<p>note</p>", "isPinned": true},
		"1700000000001": {"title": "Other", "content": ""}
	}`)
	res, err := svc.Import(ctx, payload, false)
	require.NoError(t, err)
	require.Equal(t, ImportResult{Imported: 2, Skipped: 1}, res)

	got, err := store.Get(ctx, "5")
	require.NoError(t, err)
	require.Equal(t, "existing", got.Title)
	pinned, err := store.Get(ctx, "1700000000000")
	require.NoError(t, err)
	require.True(t, pinned.IsPinned)

	res, err = svc.Import(ctx, payload, true)
	require.NoError(t, err)
	require.Equal(t, 1, res.Imported)
	require.Equal(t, 2, res.Skipped)
	got, err = store.Get(ctx, "5")
	require.NoError(t, err)
	require.Equal(t, "changed", got.Title)
}

func TestService_ImportCorruptIsArchived(t *testing.T) {
	svc, store := newTestService(t)
	arch := &fakeArchiver{}
	svc.WithArchiver(arch)
	ctx := context.Background()

	res, err := svc.Import(ctx, []byte(`{"1": {"title": "x"`), false)
	require.NoError(t, err)
	require.True(t, res.Corrupt)
	require.Equal(t, 0, res.Imported)
	require.Equal(t, "backups/corrupt/legacy-notes.json", res.BackupKey)
	require.Equal(t, `{"1": {"title": "x"`, string(arch.payload))
	require.Empty(t, store.GetAll(ctx))

	arch.err = errors.New("s3 down")
	res, err = svc.Import(ctx, []byte(`[1,2]`), false)
	require.NoError(t, err)
	require.True(t, res.Corrupt)
	require.Empty(t, res.BackupKey)
}

func TestService_UpdateChecksRevision(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "n", Record{Title: "t", Content: "<p>v1</p>", IsPinned: true}))

	cur, err := svc.Get(ctx, "n")
	require.NoError(t, err)

	content := "<p>v2</p>"
	_, err = svc.Update(ctx, "n", "", nil, &content)
	require.ErrorIs(t, err, ErrPriorHashRequired)
	_, err = svc.Update(ctx, "n", "stale", nil, &content)
	require.ErrorIs(t, err, ErrRevisionConflict)

	updated, err := svc.Update(ctx, "n", cur.Revision, nil, &content)
	require.NoError(t, err)
	require.Equal(t, "t", updated.Title)
	require.Equal(t, content, updated.Content)
	require.True(t, updated.IsPinned)
	require.Equal(t, RevisionHash("t", content), updated.Revision)

	_, err = svc.Update(ctx, "n", cur.Revision, nil, &content)
	require.ErrorIs(t, err, ErrRevisionConflict, "the old revision is no longer current")
}
