// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package chapter

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize_StripsPrefixesAndParsesNumber(t *testing.T) {
	cases := []struct {
		label  string
		number float64
	}{
		{"Chapter 12", 12},
		{"chapter 12.5", 12.5},
		{"Ch. 3", 3},
		{"ch 3", 3},
		{"#7", 7},
		{"  Chapter 001  ", 1},
		{"Vol. 2 Chapter 14", 2}, // first decimal wins
	}
	for _, tc := range cases {
		normalized := Normalize(tc.label, "")
		require.NotNil(t, normalized.Number, "label %q", tc.label)
		require.Equal(t, tc.number, *normalized.Number, "label %q", tc.label)
		require.Equal(t, TypeNormal, normalized.Type, "label %q", tc.label)
	}
}

func TestNormalize_DetectsTypeTokens(t *testing.T) {
	require.Equal(t, TypeExtra, Normalize("Extra 1", "").Type)
	require.Equal(t, TypeExtra, Normalize("Omake", "").Type)
	require.Equal(t, TypeExtra, Normalize("Oneshot", "").Type)
	require.Equal(t, TypeSpecial, Normalize("Special 2", "").Type)
}

func TestNormalize_SlugFromNumberOrTitleHash(t *testing.T) {
	numbered := Normalize("Chapter 1.50", "")
	require.Equal(t, "normal-1.5", numbered.Slug)

	unnumbered := Normalize("Omake", "A Day Off")
	require.Nil(t, unnumbered.Number)
	require.Equal(t, TypeExtra, unnumbered.Type)
	// Slug is derived from the title, so it is stable across re-ingestion.
	require.Equal(t, unnumbered.Slug, Normalize("Omake", "A Day Off").Slug)
	require.NotEqual(t, unnumbered.Slug, Normalize("Omake", "Another Day").Slug)
}

func TestIdentityKey_SentinelAndCanonicalCollapse(t *testing.T) {
	require.Equal(t, "-1", IdentityKey(nil))

	one := 1.0
	require.Equal(t, "1", IdentityKey(&one))

	// "1", "1.0", and "01" all collapse to the same identity.
	for _, label := range []string{"Chapter 1", "Chapter 1.0", "Chapter 01"} {
		normalized := Normalize(label, "")
		require.Equal(t, "1", IdentityKey(normalized.Number), "label %q", label)
	}
}

func TestCanonicalString_TrimsTrailingZeros(t *testing.T) {
	require.Equal(t, "1", CanonicalString(1.00))
	require.Equal(t, "1.5", CanonicalString(1.50))
	require.Equal(t, "10", CanonicalString(10))
	require.Equal(t, "0.5", CanonicalString(0.5))
}
