package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	mu        sync.Mutex
	messages  []kafka.Message
	committed []int64
	closed    bool
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		return kafka.Message{}, io.EOF
	}
	msg := f.messages[0]
	f.messages = f.messages[1:]
	return msg, nil
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Close() error {
	f.closed = true
	return nil
}

func TestConsumer_CommitsOnlyHandledMessages(t *testing.T) {
	r := &fakeReader{messages: []kafka.Message{
		{Offset: 1, Value: []byte("ok")},
		{Offset: 2, Value: []byte("fail")},
		{Offset: 3, Value: []byte("ok")},
	}}
	var seen []string
	c := newConsumer(r, "topic", func(_ context.Context, _ []byte, value []byte) error {
		seen = append(seen, string(value))
		if string(value) == "fail" {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, []string{"ok", "fail", "ok"}, seen)
	assert.Equal(t, []int64{1, 3}, r.committed)

	require.NoError(t, c.Close())
	assert.True(t, r.closed)
}

func TestConsumer_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := newConsumer(&fakeReader{}, "topic", func(context.Context, []byte, []byte) error {
		t.Fatal("handler must not run")
		return nil
	})
	assert.NoError(t, c.Start(ctx))
}

type fakeWriter struct {
	written []kafka.Message
	err     error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.written = append(f.written, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestProducer_PublishEncodesJSON(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "topic")

	require.NoError(t, p.Publish(context.Background(), Event{Key: "k1", Value: map[string]int{"n": 1}}))
	require.Len(t, w.written, 1)
	assert.Equal(t, "k1", string(w.written[0].Key))
	assert.JSONEq(t, `{"n":1}`, string(w.written[0].Value))

	require.NoError(t, p.PublishBatch(context.Background(), []Event{{Key: "a", Value: 1}, {Key: "b", Value: 2}}))
	assert.Len(t, w.written, 3)
	require.NoError(t, p.PublishBatch(context.Background(), nil))
}

func TestProducer_PublishErrors(t *testing.T) {
	p := newProducer(&fakeWriter{err: errors.New("broker down")}, "topic")
	assert.Error(t, p.Publish(context.Background(), Event{Key: "k", Value: 1}))

	p = newProducer(&fakeWriter{}, "topic")
	assert.Error(t, p.Publish(context.Background(), Event{Key: "k", Value: make(chan int)}))
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}
	raw, _ := json.Marshal(payload{Name: "x"})
	got, err := DecodeJSON[payload](raw)
	require.NoError(t, err)
	assert.Equal(t, "x", got.Name)

	_, err = DecodeJSON[payload]([]byte("{"))
	assert.Error(t, err)
}
