package apartment_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seantiz/apartment/internal/apartment"
)

func TestMailboxPostAndDrain(t *testing.T) {
	mb := apartment.NewMailbox(2)

	var ran []int
	require.NoError(t, mb.Post(func() { ran = append(ran, 1) }))
	require.NoError(t, mb.Post(func() { ran = append(ran, 2) }))
	assert.ErrorIs(t, mb.Post(func() {}), apartment.ErrMailboxFull)
	assert.Equal(t, 2, mb.Pending())

	assert.Equal(t, 2, mb.Drain())
	assert.Equal(t, []int{1, 2}, ran)
	assert.Zero(t, mb.Pending())
	assert.Zero(t, mb.Drain())
}

func TestMailboxCallRunsOnServer(t *testing.T) {
	mb := apartment.NewMailbox(1)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errBoom := errors.New("boom")
	served := make(chan struct{})
	go func() {
		defer close(served)
		_ = mb.Serve(ctx)
	}()

	assert.NoError(t, mb.Call(ctx, func() error { return nil }))
	assert.ErrorIs(t, mb.Call(ctx, func() error { return errBoom }), errBoom)

	err := mb.Call(ctx, func() error { panic("owner panicked") })
	var panicErr *apartment.PanicError
	require.ErrorAs(t, err, &panicErr)
	assert.Equal(t, "owner panicked", panicErr.Value)

	cancel()
	<-served
}

func TestMailboxCallHonorsContext(t *testing.T) {
	mb := apartment.NewMailbox(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// Nobody serves the mailbox.
	err := mb.Call(ctx, func() error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMailboxServeUntil(t *testing.T) {
	mb := apartment.NewMailbox(4)
	done := make(chan struct{})

	require.NoError(t, mb.Post(func() {}))
	require.NoError(t, mb.Post(func() { close(done) }))

	finished := make(chan struct{})
	go func() {
		mb.ServeUntil(done)
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("ServeUntil did not return after done closed")
	}
}
