package flow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeText(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want Trigger
	}{
		{"plain text", "hello", Trigger{Kind: TriggerText, Text: "hello"}},
		{"command", "/start", Trigger{Kind: TriggerCommand, Command: "/start", Text: "/start"}},
		{"command with args", "/price ps 5600", Trigger{Kind: TriggerCommand, Command: "/price", Text: "/price ps 5600"}},
		{"command with bot mention", "/start@CoinsBot", Trigger{Kind: TriggerCommand, Command: "/start", Text: "/start@CoinsBot"}},
		{"whitespace trimmed", "  42  ", Trigger{Kind: TriggerText, Text: "42"}},
		{"lone slash", "/", Trigger{Kind: TriggerCommand, Command: "/", Text: "/"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, DecodeText(tc.raw))
		})
	}
}

func TestClaimMarkCheckAndClear(t *testing.T) {
	ev := NewEvent(1, "u", Text("hi"))

	require.False(t, ev.CheckAndClear(), "fresh event starts unmarked")

	ev.MarkHandled()
	require.True(t, ev.CheckAndClear())
	require.False(t, ev.CheckAndClear(), "check must clear the tag")
}

func TestClaimDoubleMarkReadsOnce(t *testing.T) {
	ev := NewEvent(1, "u", Text("hi"))
	ev.MarkHandled()
	ev.MarkHandled()
	require.True(t, ev.CheckAndClear())
	require.False(t, ev.CheckAndClear())
}

func TestCommandConstructorNormalizesSlash(t *testing.T) {
	require.Equal(t, "/sell", Command("sell").Command)
	require.Equal(t, "/sell", Command("/sell").Command)
}
