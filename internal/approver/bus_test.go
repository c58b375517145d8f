package approver

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoApproverSignsImmediately(t *testing.T) {
	b := NewBus()
	assert.False(t, b.HasApprover(), "expected no approver attached")

	req := NewTxRequest(b.NextSequenceID(), "personal_sign", nil, nil, func() (string, error) {
		return "0xSIG", nil
	})
	got, err := req.Sign()
	require.NoError(t, err)
	assert.Equal(t, "0xSIG", got)
}

func TestEmitAndResolve(t *testing.T) {
	b := NewBus()
	requests, detach := b.Attach()
	defer detach()

	req := NewTxRequest(b.NextSequenceID(), "personal_sign", nil,
		[]DisplayField{{Key: "message", Value: "hello"}},
		func() (string, error) { return "", errors.New("should not be called") })

	go b.Emit(req)

	select {
	case got := <-requests:
		assert.Equal(t, req.SequenceID, got.SequenceID)
		got.Resolve("0xSIG")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for emitted request")
	}

	val, err := req.Wait()
	require.NoError(t, err)
	assert.Equal(t, "0xSIG", val)
}

func TestRejectPropagates(t *testing.T) {
	b := NewBus()
	req := NewTxRequest(b.NextSequenceID(), "eth_sendTransaction", nil, nil, nil)
	go req.Reject(errors.New("user declined"))
	_, err := req.Wait()
	require.Error(t, err)
	assert.Equal(t, "user declined", err.Error())
}

func TestDoubleResolveIgnored(t *testing.T) {
	req := NewTxRequest(1, "personal_sign", nil, nil, nil)
	req.Resolve("first")
	req.Resolve("second")
	val, err := req.Wait()
	require.NoError(t, err)
	assert.Equal(t, "first", val)
}

func TestSequenceIDsMonotonic(t *testing.T) {
	b := NewBus()
	a := b.NextSequenceID()
	c := b.NextSequenceID()
	assert.Greater(t, c, a)
}
