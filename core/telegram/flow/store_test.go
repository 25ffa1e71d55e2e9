package flow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBucketIsolationAcrossFlows(t *testing.T) {
	s := NewStore()

	reg := s.Bucket(100, "registration")
	sell := s.Bucket(100, "sell")
	reg.Set("phone", "01012345678")
	sell.Set("amount", "5000")

	_, ok := sell.Get("phone")
	require.False(t, ok, "sell bucket must not see registration keys")
	require.Equal(t, "01012345678", reg.Value("phone"))

	s.Clear(100, "registration")
	require.False(t, s.Has(100, "registration"))
	require.True(t, s.Has(100, "sell"), "clearing one flow must not touch another")
	require.Equal(t, "5000", sell.Value("amount"))
}

func TestBucketIsolationAcrossUsers(t *testing.T) {
	s := NewStore()
	s.Bucket(1, "sell").Set("amount", "100")
	s.Bucket(2, "sell").Set("amount", "200")

	require.Equal(t, "100", s.Bucket(1, "sell").Value("amount"))
	require.Equal(t, "200", s.Bucket(2, "sell").Value("amount"))
}

func TestClearIsIdempotent(t *testing.T) {
	s := NewStore()
	s.Clear(5, "registration")

	b := s.Bucket(5, "registration")
	b.Set("k", "v")
	s.Clear(5, "registration")
	s.Clear(5, "registration")
	require.False(t, s.Has(5, "registration"))
	require.Equal(t, 0, b.Len())
}

func TestHasRequiresNonEmptyBucket(t *testing.T) {
	s := NewStore()
	b := s.Bucket(7, "admin")
	b.Set("k", "v")
	b.Delete("k")
	require.False(t, s.Has(7, "admin"))
	require.False(t, s.HasAny(7))
}

func TestSetInstanceResumesInPlace(t *testing.T) {
	s := NewStore()
	s.SetInstance(9, "registration", "entering_whatsapp")
	first, ok := s.Instance(9, "registration")
	require.True(t, ok)

	s.SetInstance(9, "registration", "choosing_payment")
	second, ok := s.Instance(9, "registration")
	require.True(t, ok)
	require.Equal(t, State("choosing_payment"), second.State)
	require.Equal(t, first.Entered, second.Entered, "resume must keep the original entry time")
}

func TestDropUserRemovesEverything(t *testing.T) {
	s := NewStore()
	s.Bucket(3, "sell").Set("amount", "900")
	s.SetInstance(3, "sell", "entering_amount")

	s.DropUser(3)
	require.False(t, s.HasAny(3))
	_, ok := s.ActiveFlow(3)
	require.False(t, ok)
}

func TestSnapshotReturnsCopy(t *testing.T) {
	s := NewStore()
	b := s.Bucket(4, "sell")
	b.Set("amount", "1000")

	snap := b.Snapshot()
	snap["amount"] = "mutated"
	require.Equal(t, "1000", b.Value("amount"))
}
