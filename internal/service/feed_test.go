package service

import (
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/and161185/imagefeed/internal/config"
	"github.com/and161185/imagefeed/internal/events"
	"github.com/and161185/imagefeed/internal/model"
)

func photoJSON(id string, liked bool) string {
	return fmt.Sprintf(`{"id":%q,"width":4000,"height":3000,"created_at":"2024-05-01T10:00:00Z","description":"desc %s",`+
		`"urls":{"full":"https://img/%s/full","regular":"https://img/%s/regular","small":"https://img/%s/small","thumb":"https://img/%s/thumb"},`+
		`"liked_by_user":%t}`, id, id, id, id, id, id, liked)
}

func pageJSON(ids ...string) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = photoJSON(id, false)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func pageIDs(page, perPage int) []string {
	ids := make([]string, perPage)
	for i := range ids {
		ids[i] = fmt.Sprintf("p%d-%d", page, i)
	}
	return ids
}

func ids(photos []model.Photo) []string {
	out := make([]string, len(photos))
	for i, p := range photos {
		out[i] = p.ID
	}
	return out
}

func TestFeedStore_PagesAccumulateInOrder(t *testing.T) {
	const perPage, pages = 3, 4
	h := newHarness(t)
	var want []string
	for p := 1; p <= pages; p++ {
		h.doer.on(http.MethodGet, "/photos", ok(pageJSON(pageIDs(p, perPage)...)))
		want = append(want, pageIDs(p, perPage)...)
	}
	f := NewFeedStore(h.loop, h.client, h.bus, perPage, nil)

	var changes []events.FeedChanged
	h.bus.FeedChanged.Subscribe(func(e events.FeedChanged) { changes = append(changes, e) })

	for range pages {
		var rec recorder[struct{}]
		f.LoadNextPage(func(err error) { rec.fn(struct{}{}, err) })
		h.settle(t)
		require.NoError(t, rec.only(t).err)
	}

	got := f.Photos()
	require.Len(t, got, perPage*pages)
	require.Equal(t, want, ids(got))
	require.Equal(t, pages, f.LastLoadedPage())

	reqs := h.doer.requests()
	require.Len(t, reqs, pages)
	for i, r := range reqs {
		require.Equal(t, fmt.Sprint(i+1), r.URL.Query().Get("page"))
		require.Equal(t, fmt.Sprint(perPage), r.URL.Query().Get("per_page"))
	}

	var seen []events.FeedChanged
	h.onLoopSync(t, func() { seen = append(seen, changes...) })
	require.Len(t, seen, pages)
	for i, e := range seen {
		require.Equal(t, i+1, e.Page)
		require.Len(t, e.Photos, perPage)
		require.Equal(t, (i+1)*perPage, e.Total)
	}
}

func TestFeedStore_MapsPhotoFields(t *testing.T) {
	h := newHarness(t)
	h.doer.on(http.MethodGet, "/photos", ok("["+photoJSON("a", true)+"]"))
	f := NewFeedStore(h.loop, h.client, h.bus, 0, nil)

	f.LoadNextPage(nil)
	h.settle(t)

	got := f.Photos()
	require.Len(t, got, 1)
	require.Equal(t, model.Photo{
		ID:          "a",
		Size:        model.Size{Width: 4000, Height: 3000},
		CreatedAt:   time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Description: "desc a",
		ThumbURL:    "https://img/a/thumb",
		SmallURL:    "https://img/a/small",
		RegularURL:  "https://img/a/regular",
		LargeURL:    "https://img/a/full",
		IsLiked:     true,
	}, got[0])
	require.Equal(t, fmt.Sprint(config.DefaultPerPage), h.doer.requests()[0].URL.Query().Get("per_page"))
}

func TestFeedStore_SinglePageRequestInFlight(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	h.doer.on(http.MethodGet, "/photos", reply{status: http.StatusOK, body: pageJSON("a", "b"), gate: gate})
	f := NewFeedStore(h.loop, h.client, h.bus, 2, nil)

	var rec recorder[struct{}]
	done := func(err error) { rec.fn(struct{}{}, err) }
	f.LoadNextPage(done)
	f.LoadNextPage(done)
	f.LoadNextPage(done)
	h.onLoopSync(t, func() {})
	require.Eventually(t, func() bool { return len(h.doer.requests()) == 1 }, 3*time.Second, 5*time.Millisecond)

	close(gate)
	h.settle(t)

	require.Len(t, rec.all(), 1)
	require.Equal(t, 1, h.doer.count(http.MethodGet, "/photos"))
	require.Equal(t, []string{"a", "b"}, ids(f.Photos()))
}

func TestFeedStore_SkipsRepeatedIDs(t *testing.T) {
	h := newHarness(t)
	h.doer.on(http.MethodGet, "/photos", ok(pageJSON("a", "b")), ok(pageJSON("b", "c")))
	f := NewFeedStore(h.loop, h.client, h.bus, 2, nil)

	var last events.FeedChanged
	h.bus.FeedChanged.Subscribe(func(e events.FeedChanged) { last = e })

	f.LoadNextPage(nil)
	h.settle(t)
	f.LoadNextPage(nil)
	h.settle(t)

	require.Equal(t, []string{"a", "b", "c"}, ids(f.Photos()))
	h.onLoopSync(t, func() {
		require.Equal(t, 2, last.Page)
		require.Equal(t, []string{"c"}, ids(last.Photos))
		require.Equal(t, 3, last.Total)
	})
}

func TestFeedStore_FailedPageIsRetried(t *testing.T) {
	h := newHarness(t)
	h.doer.on(http.MethodGet, "/photos",
		reply{status: http.StatusInternalServerError, body: "boom"},
		ok(pageJSON("a")),
	)
	f := NewFeedStore(h.loop, h.client, h.bus, 1, nil)

	var rec recorder[struct{}]
	f.LoadNextPage(func(err error) { rec.fn(struct{}{}, err) })
	h.settle(t)
	require.Error(t, rec.only(t).err)
	require.Zero(t, f.LastLoadedPage())
	require.Empty(t, f.Photos())

	f.LoadNextPage(nil)
	h.settle(t)

	reqs := h.doer.requests()
	require.Len(t, reqs, 2)
	require.Equal(t, "1", reqs[1].URL.Query().Get("page"))
	require.Equal(t, 1, f.LastLoadedPage())
}

func loadedFeed(t *testing.T, h *harness, photoIDs ...string) *FeedStore {
	t.Helper()
	h.doer.on(http.MethodGet, "/photos", ok(pageJSON(photoIDs...)))
	f := NewFeedStore(h.loop, h.client, h.bus, len(photoIDs), nil)
	f.LoadNextPage(nil)
	h.settle(t)
	require.Len(t, f.Photos(), len(photoIDs))
	return f
}

func TestFeedStore_LikeChangesOnlyIsLiked(t *testing.T) {
	h := newHarness(t)
	f := loadedFeed(t, h, "a", "b")
	before := f.Photos()
	h.doer.on(http.MethodPost, "/photos/b/like", ok(`{"photo":`+photoJSON("b", true)+`}`))

	var changed []events.PhotoChanged
	h.bus.PhotoChanged.Subscribe(func(e events.PhotoChanged) { changed = append(changed, e) })

	var rec recorder[model.Photo]
	f.SetLike("b", true, rec.fn)
	h.settle(t)

	got := rec.only(t)
	require.NoError(t, got.err)
	require.Equal(t, before[1].WithLiked(true), got.v)

	after := f.Photos()
	require.Equal(t, before[0], after[0])
	require.Equal(t, got.v, after[1])
	require.False(t, before[1].IsLiked)

	h.onLoopSync(t, func() {
		require.Len(t, changed, 1)
		require.Equal(t, 1, changed[0].Index)
		require.True(t, changed[0].Photo.IsLiked)
	})
}

func TestFeedStore_UnlikeUsesDelete(t *testing.T) {
	h := newHarness(t)
	f := loadedFeed(t, h, "a")
	h.doer.on(http.MethodDelete, "/photos/a/like", ok(`{"photo":`+photoJSON("a", false)+`}`))

	var rec recorder[model.Photo]
	f.SetLike("a", false, rec.fn)
	h.settle(t)

	require.NoError(t, rec.only(t).err)
	require.False(t, f.Photos()[0].IsLiked)
	require.Equal(t, 1, h.doer.count(http.MethodDelete, "/photos/a/like"))
}

func TestFeedStore_FailedLikeLeavesFeedUnchanged(t *testing.T) {
	h := newHarness(t)
	f := loadedFeed(t, h, "a")
	before := f.Photos()
	h.doer.on(http.MethodPost, "/photos/a/like", reply{status: http.StatusForbidden, body: `{"errors":["write_likes scope missing"]}`})

	published := 0
	h.bus.PhotoChanged.Subscribe(func(events.PhotoChanged) { published++ })

	var rec recorder[model.Photo]
	f.SetLike("a", true, rec.fn)
	h.settle(t)

	err := rec.only(t).err
	require.Error(t, err)
	require.Contains(t, err.Error(), "write_likes")
	require.Equal(t, before, f.Photos())
	h.onLoopSync(t, func() { require.Zero(t, published) })
}

func TestFeedStore_NewLikeSupersedesPending(t *testing.T) {
	h := newHarness(t)
	f := loadedFeed(t, h, "a", "b")
	gate := make(chan struct{})
	h.doer.on(http.MethodPost, "/photos/a/like", reply{status: http.StatusOK, body: `{"photo":` + photoJSON("a", true) + `}`, gate: gate})
	h.doer.on(http.MethodPost, "/photos/b/like", ok(`{"photo":`+photoJSON("b", true)+`}`))

	var first, second recorder[model.Photo]
	f.SetLike("a", true, first.fn)
	require.Eventually(t, func() bool { return h.doer.count(http.MethodPost, "/photos/a/like") == 1 }, 3*time.Second, 5*time.Millisecond)
	f.SetLike("b", true, second.fn)
	require.Eventually(t, func() bool { return len(second.all()) == 1 }, 3*time.Second, 5*time.Millisecond)
	close(gate)
	h.settle(t)

	require.Empty(t, first.all())
	require.Equal(t, "b", second.only(t).v.ID)

	got := f.Photos()
	require.False(t, got[0].IsLiked)
	require.True(t, got[1].IsLiked)
}

func TestFeedStore_UnlikeSupersedesPendingLikeOfSamePhoto(t *testing.T) {
	h := newHarness(t)
	f := loadedFeed(t, h, "a")
	gate := make(chan struct{})
	h.doer.on(http.MethodPost, "/photos/a/like", reply{status: http.StatusOK, body: `{"photo":` + photoJSON("a", true) + `}`, gate: gate})
	h.doer.on(http.MethodDelete, "/photos/a/like", ok(`{"photo":`+photoJSON("a", false)+`}`))

	var like, unlike recorder[model.Photo]
	f.SetLike("a", true, like.fn)
	require.Eventually(t, func() bool { return h.doer.count(http.MethodPost, "/photos/a/like") == 1 }, 3*time.Second, 5*time.Millisecond)
	f.SetLike("a", false, unlike.fn)
	require.Eventually(t, func() bool { return len(unlike.all()) == 1 }, 3*time.Second, 5*time.Millisecond)
	close(gate)
	h.settle(t)

	require.Empty(t, like.all())
	got := unlike.only(t)
	require.NoError(t, got.err)
	require.False(t, got.v.IsLiked)
	require.False(t, f.Photos()[0].IsLiked)
}

func TestFeedStore_EmptyPhotoID(t *testing.T) {
	h := newHarness(t)
	f := NewFeedStore(h.loop, h.client, h.bus, 1, nil)

	var rec recorder[model.Photo]
	f.SetLike("", true, rec.fn)
	h.settle(t)

	require.ErrorIs(t, rec.only(t).err, ErrEmptyPhotoID)
	require.Empty(t, h.doer.requests())
}

func TestFeedStore_LikeOfRemovedPhotoIsDropped(t *testing.T) {
	h := newHarness(t)
	f := loadedFeed(t, h, "a")
	gate := make(chan struct{})
	h.doer.on(http.MethodPost, "/photos/a/like", reply{status: http.StatusOK, body: `{"photo":` + photoJSON("a", true) + `}`, gate: gate})

	var rec recorder[model.Photo]
	f.SetLike("a", true, rec.fn)
	require.Eventually(t, func() bool { return h.doer.count(http.MethodPost, "/photos/a/like") == 1 }, 3*time.Second, 5*time.Millisecond)
	f.Reset()
	close(gate)
	h.settle(t)

	require.Empty(t, rec.all())
	require.Empty(t, f.Photos())
	require.Zero(t, f.LastLoadedPage())
}

func TestFeedStore_SnapshotIsDetached(t *testing.T) {
	h := newHarness(t)
	f := loadedFeed(t, h, "a", "b")

	snap := f.Photos()
	snap[0].ID = "mutated"
	require.Equal(t, []string{"a", "b"}, ids(f.Photos()))
}

func TestFeedStore_ResetRestartsAtFirstPage(t *testing.T) {
	h := newHarness(t)
	f := loadedFeed(t, h, "a")

	f.Reset()
	h.settle(t)
	f.LoadNextPage(nil)
	h.settle(t)

	reqs := h.doer.requests()
	require.Len(t, reqs, 2)
	require.Equal(t, "1", reqs[1].URL.Query().Get("page"))
	require.Equal(t, []string{"a"}, ids(f.Photos()))
}
