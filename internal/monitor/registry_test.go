package monitor

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFanOutSendsOnlyToMatchingFacility(t *testing.T) {
	r := New()
	r.Register("A", "RoomA", time.Minute)
	r.Register("B", "RoomB", time.Minute)

	var sent []string
	r.FanOut("RoomA", func(endpoint string, payload []byte) error {
		sent = append(sent, endpoint)
		return nil
	}, func() []byte { return []byte("payload") })

	assert.Equal(t, []string{"A"}, sent)
}

func TestFanOutPrunesExpiredSubscriptions(t *testing.T) {
	r := New()
	clock := time.Now()
	r.now = func() time.Time { return clock }
	r.Register("A", "RoomA", time.Minute)

	clock = clock.Add(2 * time.Minute)
	var sent []string
	r.FanOut("RoomA", func(endpoint string, payload []byte) error {
		sent = append(sent, endpoint)
		return nil
	}, func() []byte { return []byte("payload") })

	assert.Empty(t, sent)
	assert.Equal(t, 0, r.Count())
}

func TestFanOutRemovesSubscriptionOnSendFailure(t *testing.T) {
	r := New()
	r.Register("A", "RoomA", time.Minute)
	r.Register("B", "RoomA", time.Minute)

	r.FanOut("RoomA", func(endpoint string, payload []byte) error {
		if endpoint == "A" {
			return errors.New("boom")
		}
		return nil
	}, func() []byte { return []byte("payload") })

	assert.Equal(t, 1, r.Count())

	var sent []string
	r.FanOut("RoomA", func(endpoint string, payload []byte) error {
		sent = append(sent, endpoint)
		return nil
	}, func() []byte { return []byte("payload") })
	assert.Equal(t, []string{"B"}, sent)
}

func TestFanOutWithNoSubscribersSkipsPayloadBuild(t *testing.T) {
	r := New()
	built := false
	r.FanOut("RoomA", func(string, []byte) error { return nil }, func() []byte {
		built = true
		return nil
	})
	assert.False(t, built)
}

func TestRegisterAllowsDuplicateSubscriptions(t *testing.T) {
	r := New()
	r.Register("A", "RoomA", time.Minute)
	r.Register("A", "RoomA", time.Minute)
	require.Equal(t, 2, r.Count())
}
