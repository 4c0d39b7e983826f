package consumer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/domain"
	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/indexer"
	apperrors "github.com/Adithya-Monish-Kumar-K/unified-search/pkg/errors"
)

type call struct {
	event domain.LifecycleEvent
	id    string
}

type fakeDispatcher struct {
	calls []call
	err   error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, event domain.LifecycleEvent, id string) (indexer.Outcome, error) {
	f.calls = append(f.calls, call{event, id})
	return indexer.OutcomeIndexed, f.err
}

func TestHandleMessage_Dispatches(t *testing.T) {
	d := &fakeDispatcher{}
	h := HandleMessage(d)

	assert.NoError(t, h(context.Background(), nil, []byte(`{"event":"publish","source_id":"p-1"}`)))
	assert.NoError(t, h(context.Background(), []byte("a-9"), []byte(`{"event":"DELETE"}`)))

	assert.Equal(t, []call{{domain.EventPublish, "p-1"}, {domain.EventDelete, "a-9"}}, d.calls)
}

func TestHandleMessage_PoisonMessagesAreSkipped(t *testing.T) {
	d := &fakeDispatcher{}
	h := HandleMessage(d)

	assert.NoError(t, h(context.Background(), nil, []byte(`not json`)))
	assert.NoError(t, h(context.Background(), nil, []byte(`{"event":"trash","source_id":"p-1"}`)))
	assert.Empty(t, d.calls)

	d.err = apperrors.Normalization("p-1", "title is required")
	assert.NoError(t, h(context.Background(), nil, []byte(`{"event":"update","source_id":"p-1"}`)))
}

func TestHandleMessage_TransientErrorsAreRetried(t *testing.T) {
	for _, sentinel := range []error{apperrors.ErrSourceUnavailable, apperrors.ErrStorage} {
		d := &fakeDispatcher{err: sentinel}
		err := HandleMessage(d)(context.Background(), nil, []byte(`{"event":"update","source_id":"p-1"}`))
		assert.ErrorIs(t, err, sentinel)
	}
}
