package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/and161185/imagefeed/internal/model"
)

func TestTopic_DeliversInSubscriptionOrder(t *testing.T) {
	var topic Topic[ProfileImageChanged]
	var got []string

	topic.Subscribe(func(e ProfileImageChanged) { got = append(got, "a:"+e.URL) })
	topic.Subscribe(func(e ProfileImageChanged) { got = append(got, "b:"+e.URL) })

	topic.Publish(ProfileImageChanged{URL: "u1"})
	require.Equal(t, []string{"a:u1", "b:u1"}, got)
}

func TestTopic_Unsubscribe(t *testing.T) {
	var topic Topic[FeedChanged]
	calls := 0
	unsubscribe := topic.Subscribe(func(FeedChanged) { calls++ })

	topic.Publish(FeedChanged{Page: 1})
	unsubscribe()
	unsubscribe()
	topic.Publish(FeedChanged{Page: 2})

	require.Equal(t, 1, calls)
	require.Zero(t, topic.Len())
}

func TestTopic_NoReplayForLateSubscribers(t *testing.T) {
	var topic Topic[PhotoChanged]
	topic.Publish(PhotoChanged{Index: 0, Photo: model.Photo{ID: "x"}})

	calls := 0
	topic.Subscribe(func(PhotoChanged) { calls++ })
	require.Zero(t, calls)
}

func TestTopic_UnsubscribeDuringPublish(t *testing.T) {
	var topic Topic[ProfileImageChanged]
	var second int
	var unsubscribeSecond func()
	topic.Subscribe(func(ProfileImageChanged) { unsubscribeSecond() })
	unsubscribeSecond = topic.Subscribe(func(ProfileImageChanged) { second++ })

	// the snapshot taken at publish time still includes the second handler
	topic.Publish(ProfileImageChanged{})
	topic.Publish(ProfileImageChanged{})
	require.Equal(t, 1, second)
}

func TestTopic_SubscribeContext(t *testing.T) {
	var topic Topic[FeedChanged]
	ctx, cancel := context.WithCancel(context.Background())
	topic.SubscribeContext(ctx, func(FeedChanged) {})
	require.Equal(t, 1, topic.Len())

	cancel()
	require.Eventually(t, func() bool { return topic.Len() == 0 }, time.Second, 5*time.Millisecond)
}
