// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package cursor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_RoundTrips(t *testing.T) {
	original := Cursor{
		Timestamp: time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC),
		ID:        "123e4567-e89b-12d3-a456-426614174000",
	}

	decoded, err := Decode(Encode(original))
	require.NoError(t, err)
	require.True(t, original.Timestamp.Equal(decoded.Timestamp))
	require.Equal(t, original.ID, decoded.ID)
}

func TestDecode_RejectsGarbage(t *testing.T) {
	_, err := Decode("not-base64!!")
	require.ErrorIs(t, err, ErrInvalid)

	_, err = Decode("")
	require.ErrorIs(t, err, ErrInvalid)
}
