package push

import (
	"context"
	"testing"
	"time"

	"github.com/99souls/flagengine/internal/api"
	"github.com/99souls/flagengine/internal/dto"
	"github.com/99souls/flagengine/internal/streaming"
	"github.com/99souls/flagengine/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuthenticator struct {
	token dto.Token
	err   error
}

func (f fakeAuthenticator) Authenticate(ctx context.Context) (dto.Token, error) {
	return f.token, f.err
}

type fakeStreamClient struct {
	events chan streaming.RawEvent
	errs   chan error
	err    error
}

func (f *fakeStreamClient) Connect(ctx context.Context, channels []string, accessToken string) (<-chan streaming.RawEvent, <-chan error, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.events, f.errs, nil
}

type fakeFlagStoreForPush struct {
	killed []string
}

func (f *fakeFlagStoreForPush) Kill(name, defaultTreatment string, changeNumber int64) {
	f.killed = append(f.killed, name)
}

func TestManagerNonretryableWhenPushDisabled(t *testing.T) {
	auth := fakeAuthenticator{token: dto.Token{PushEnabled: false}}
	m := NewManager(auth, &fakeStreamClient{}, &fakeFlagStoreForPush{}, NewFlagQueue(4), NewSegmentQueue(4), 4, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() { m.Run(ctx); close(done) }()

	select {
	case status := <-m.Status():
		assert.Equal(t, StatusNonretryableError, status)
	case <-time.After(time.Second):
		t.Fatal("expected a status before timeout")
	}
	<-done
}

func TestManagerDispatchesSplitKillToStoreAndQueue(t *testing.T) {
	events := make(chan streaming.RawEvent, 1)
	errs := make(chan error, 1)
	stream := &fakeStreamClient{events: events, errs: errs}
	flagStore := &fakeFlagStoreForPush{}
	flagQueue := NewFlagQueue(4)

	m := NewManager(fakeAuthenticator{token: dto.Token{PushEnabled: true, Channels: []string{"x_splits"}, ExpirationTime: time.Now().Add(time.Hour)}}, stream, flagStore, flagQueue, NewSegmentQueue(4), 4, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	// Drain the initial SUBSYSTEM_UP status before asserting on the kill path.
	require.Eventually(t, func() bool {
		select {
		case <-m.Status():
			return true
		default:
			return false
		}
	}, time.Second, time.Millisecond)

	events <- streaming.RawEvent{Event: "message", Data: []byte(`{"type":"SPLIT_KILL","changeNumber":7,"splitName":"demo","defaultTreatment":"off"}`)}

	require.Eventually(t, func() bool { return len(flagStore.killed) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, "demo", flagStore.killed[0])

	select {
	case job := <-flagQueue.C():
		assert.True(t, job.FetchOnly)
		assert.EqualValues(t, 7, job.ChangeNumber)
	case <-time.After(time.Second):
		t.Fatal("expected a fetch-only job to be enqueued")
	}
}

func TestManagerRecordsAuthRejectionOn4xx(t *testing.T) {
	counters := telemetry.NewCounters()
	auth := fakeAuthenticator{err: &api.StatusError{StatusCode: 401, Body: "invalid key"}}
	m := NewManager(auth, &fakeStreamClient{}, &fakeFlagStoreForPush{}, NewFlagQueue(4), NewSegmentQueue(4), 4, counters)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() { m.Run(ctx); close(done) }()
	<-done

	assert.Equal(t, int64(1), counters.AuthRejections())
}

func TestManagerStateTransitionsToConnectedThenStopped(t *testing.T) {
	events := make(chan streaming.RawEvent)
	errs := make(chan error)
	stream := &fakeStreamClient{events: events, errs: errs}
	m := NewManager(fakeAuthenticator{token: dto.Token{PushEnabled: true, Channels: []string{"x_splits"}, ExpirationTime: time.Now().Add(time.Hour)}},
		stream, &fakeFlagStoreForPush{}, NewFlagQueue(4), NewSegmentQueue(4), 4, nil)

	assert.Equal(t, StateIdle, m.State())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { m.Run(ctx); close(done) }()

	require.Eventually(t, func() bool { return m.State() == StateConnected }, time.Second, time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, StateStopped, m.State())
}
