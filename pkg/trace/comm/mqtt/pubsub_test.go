package mqtt

import (
	"testing"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	paho.Client

	subscribed   []string
	unsubscribed []string
	published    map[string][]byte
}

func (c *fakeClient) Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token {
	c.subscribed = append(c.subscribed, topic)
	return &paho.DummyToken{}
}

func (c *fakeClient) Unsubscribe(topics ...string) paho.Token {
	c.unsubscribed = append(c.unsubscribed, topics...)
	return &paho.DummyToken{}
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	if c.published == nil {
		c.published = make(map[string][]byte)
	}
	c.published[topic] = payload.([]byte)
	return &paho.DummyToken{}
}

func newFakeQueue(prefix string) (*Queue, *fakeClient) {
	c := &fakeClient{}
	return &Queue{Client: c, TopicPrefix: prefix, subs: make(map[string][]*Subscription)}, c
}

func TestMatchTopic(t *testing.T) {
	testCases := []struct {
		topic, filter string
		match         bool
	}{
		{"bench/trace", "+/trace", true},
		{"bench/trace", "bench/trace", true},
		{"bench/trace", "#", true},
		{"bench/trace", "bench/#", true},
		{"bench/trace/x", "+/trace", false},
		{"bench", "+/trace", false},
		{"bench/meta", "+/trace", false},
		{"a/b/c", "a/+/c", true},
	}
	for _, tc := range testCases {
		require.Equalf(t, tc.match, MatchTopic(tc.topic, tc.filter), "%s ~ %s", tc.topic, tc.filter)
	}
}

func TestClientOptionsFromURL(t *testing.T) {
	opts, prefix, err := ClientOptionsFromURL("mqtt://user:pw@localhost:1883/kwp/?client-id=bench")
	require.NoError(t, err)
	require.Equal(t, "kwp/", prefix)
	require.Equal(t, "bench", opts.ClientID)
	require.Equal(t, "user", opts.Username)
	require.Equal(t, "pw", opts.Password)
	require.Len(t, opts.Servers, 1)
	require.Equal(t, "tcp://localhost:1883", opts.Servers[0].String())

	opts, _, err = ClientOptionsFromURL("mqtt://localhost")
	require.NoError(t, err)
	require.NotEmpty(t, opts.ClientID)
}

func TestQueueSubDispatch(t *testing.T) {
	q, c := newFakeQueue("kwp/")
	var got []string
	sub1 := q.Sub(TraceFilter, func(topic string, payload []byte) {
		got = append(got, "1:"+topic+":"+string(payload))
	})
	sub2 := q.Sub(TraceFilter, func(topic string, payload []byte) {
		got = append(got, "2:"+topic)
	})
	require.Equal(t, []string{"kwp/+/trace"}, c.subscribed)

	q.deliver("kwp/bench/trace", []byte("x"))
	q.deliver("other/bench/trace", []byte("y"))
	q.deliver("kwp/bench/meta", []byte("z"))
	require.Equal(t, []string{"1:bench/trace:x", "2:bench/trace"}, got)

	require.NoError(t, sub1.Close())
	require.Empty(t, c.unsubscribed)
	require.NoError(t, sub2.Close())
	require.Equal(t, []string{"kwp/+/trace"}, c.unsubscribed)
	q.deliver("kwp/bench/trace", []byte("x"))
	require.Len(t, got, 2)
}

func TestReadWriterTopics(t *testing.T) {
	q, c := newFakeQueue("kwp/")
	w := NewPacketReadWriter(q).ForStation("bench")
	require.NoError(t, w.WritePacket([]byte{1, 2}))
	require.Equal(t, []byte{1, 2}, c.published["kwp/bench/trace"])

	require.Equal(t, "bench", StationOf("bench/trace"))
	require.Equal(t, "", StationOf("bench/meta"))
}
