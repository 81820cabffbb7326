package service

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/and161185/imagefeed/internal/config"
	"github.com/and161185/imagefeed/internal/convert"
	"github.com/and161185/imagefeed/internal/events"
	"github.com/and161185/imagefeed/internal/httpclient"
	"github.com/and161185/imagefeed/internal/loop"
	"github.com/and161185/imagefeed/internal/model"
	"github.com/and161185/imagefeed/internal/wire"
)

// ErrEmptyPhotoID is returned by SetLike for an empty id.
var ErrEmptyPhotoID = errors.New("empty photo id")

// FeedStore accumulates the paginated photo feed and applies like mutations.
//
// Pages are appended in arrival order and ids stay unique. At most one page
// request is in flight; further LoadNextPage calls are ignored until it
// settles. At most one like request is in flight; a new SetLike abandons the
// previous one. A like is applied only after the server confirms it.
type FeedStore struct {
	loop    loop.Poster
	client  *httpclient.Client
	bus     *events.Bus
	log     *zap.Logger
	perPage int

	snapshot atomic.Pointer[[]model.Photo]
	loaded   atomic.Int64

	// loop-owned
	photos   []model.Photo
	index    map[string]int
	lastPage int
	pageCall *httpclient.Call
	likeCall *httpclient.Call
}

// NewFeedStore constructs an empty feed. perPage <= 0 selects config.DefaultPerPage.
func NewFeedStore(lp loop.Poster, client *httpclient.Client, bus *events.Bus, perPage int, log *zap.Logger) *FeedStore {
	if log == nil {
		log = zap.NewNop()
	}
	if perPage <= 0 {
		perPage = config.DefaultPerPage
	}
	f := &FeedStore{
		loop:    lp,
		client:  client,
		bus:     bus,
		log:     log,
		perPage: perPage,
		index:   map[string]int{},
	}
	f.snapshot.Store(&[]model.Photo{})
	return f
}

// LoadNextPage requests the page after the last one merged. While a page
// request is in flight the call is a no-op and done is not called.
func (f *FeedStore) LoadNextPage(done func(error)) {
	onLoop(f.loop, func() { f.loadNextPage(done) }, func(err error) {
		if done != nil {
			done(err)
		}
	})
}

func (f *FeedStore) loadNextPage(done func(error)) {
	if f.pageCall != nil {
		return
	}
	next := f.lastPage + 1
	q := url.Values{
		"page":     {strconv.Itoa(next)},
		"per_page": {strconv.Itoa(f.perPage)},
	}

	var call *httpclient.Call
	call = httpclient.Fetch(f.client, httpclient.Request{Path: "/photos", Query: q},
		func(recs []wire.PhotoRecord, err error) {
			if f.pageCall == call {
				f.pageCall = nil
			}
			if err != nil {
				f.log.Warn("page load failed", zap.Int("page", next), zap.Error(err))
				if done != nil {
					done(fmt.Errorf("load page %d: %w", next, err))
				}
				return
			}
			added := f.merge(convert.Photos(recs))
			f.lastPage = next
			f.loaded.Store(int64(next))
			f.publish()
			f.log.Debug("page merged",
				zap.Int("page", next),
				zap.Int("received", len(recs)),
				zap.Int("added", len(added)),
				zap.Int("total", len(f.photos)),
			)
			f.bus.FeedChanged.Publish(events.FeedChanged{Page: next, Photos: added, Total: len(f.photos)})
			if done != nil {
				done(nil)
			}
		})
	f.pageCall = call
}

// merge appends photos with unseen ids and returns the appended ones.
func (f *FeedStore) merge(page []model.Photo) []model.Photo {
	added := make([]model.Photo, 0, len(page))
	for _, p := range page {
		if _, dup := f.index[p.ID]; dup {
			f.log.Debug("skipping repeated photo", zap.String("id", p.ID))
			continue
		}
		f.index[p.ID] = len(f.photos)
		f.photos = append(f.photos, p)
		added = append(added, p)
	}
	return added
}

// SetLike likes or unlikes a photo. An earlier SetLike still in flight is
// abandoned: its callback is never invoked and its result never applied.
//
// On success the photo is replaced by a copy with IsLiked == liked and done
// receives it. If the photo left the feed meanwhile (Reset) the result is
// dropped and done is not called. On failure the feed is unchanged.
func (f *FeedStore) SetLike(photoID string, liked bool, done func(model.Photo, error)) {
	onLoop(f.loop, func() { f.setLike(photoID, liked, done) }, func(err error) { finish(done, model.Photo{}, err) })
}

func (f *FeedStore) setLike(photoID string, liked bool, done func(model.Photo, error)) {
	f.likeCall.Cancel()
	f.likeCall = nil

	if photoID == "" {
		finish(done, model.Photo{}, ErrEmptyPhotoID)
		return
	}
	method := http.MethodDelete
	if liked {
		method = http.MethodPost
	}

	var call *httpclient.Call
	call = httpclient.Fetch(f.client, httpclient.Request{Method: method, Path: "/photos/" + url.PathEscape(photoID) + "/like"},
		func(_ wire.LikeResponse, err error) {
			if f.likeCall == call {
				f.likeCall = nil
			}
			if err != nil {
				f.log.Warn("like mutation failed",
					zap.String("id", photoID),
					zap.Bool("liked", liked),
					zap.Error(err),
				)
				finish(done, model.Photo{}, fmt.Errorf("set like %s: %w", photoID, err))
				return
			}
			i, ok := f.index[photoID]
			if !ok {
				f.log.Debug("liked photo no longer in feed", zap.String("id", photoID))
				return
			}
			p := f.photos[i].WithLiked(liked)
			f.photos[i] = p
			f.publish()
			f.bus.PhotoChanged.Publish(events.PhotoChanged{Index: i, Photo: p})
			finish(done, p, nil)
		})
	f.likeCall = call
}

// Photos returns an immutable snapshot of the feed. Safe from any goroutine.
func (f *FeedStore) Photos() []model.Photo { return *f.snapshot.Load() }

// LastLoadedPage is the highest page merged so far, 0 before the first.
func (f *FeedStore) LastLoadedPage() int { return int(f.loaded.Load()) }

// Reset empties the feed and abandons requests in flight.
func (f *FeedStore) Reset() {
	onLoop(f.loop, func() {
		f.pageCall.Cancel()
		f.pageCall = nil
		f.likeCall.Cancel()
		f.likeCall = nil
		f.photos = nil
		f.index = map[string]int{}
		f.lastPage = 0
		f.loaded.Store(0)
		f.publish()
	}, nil)
}

// publish swaps in a fresh snapshot. Snapshots never share backing arrays
// with the loop-owned slice.
func (f *FeedStore) publish() {
	snap := slices.Clone(f.photos)
	if snap == nil {
		snap = []model.Photo{}
	}
	f.snapshot.Store(&snap)
}
