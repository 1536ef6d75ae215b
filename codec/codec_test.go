// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type sample struct {
	A int
	B string
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	in := sample{A: 7, B: "hello"}
	data, err := Codec.Marshal(in)
	require.NoError(t, err)

	var out sample
	require.NoError(t, Codec.Unmarshal(data, &out))
	require.Equal(t, in, out)
}

func TestMarshalVersionedRoundTrip(t *testing.T) {
	in := sample{A: 1, B: "versioned"}
	data, err := Codec.MarshalVersioned(in)
	require.NoError(t, err)

	var out sample
	version, err := Codec.UnmarshalVersioned(data, &out)
	require.NoError(t, err)
	require.Equal(t, CurrentVersion, version)
	require.Equal(t, in, out)
}

func TestUnmarshalVersionedRejectsTooShortPayload(t *testing.T) {
	var out sample
	_, err := Codec.UnmarshalVersioned([]byte{0}, &out)
	require.Error(t, err)
}

func TestUnmarshalVersionedRejectsUnknownVersion(t *testing.T) {
	data, err := Codec.MarshalVersioned(sample{A: 1})
	require.NoError(t, err)
	data[1] = byte(CurrentVersion) + 1 // corrupt the low byte of the version

	var out sample
	_, gotErr := Codec.UnmarshalVersioned(data, &out)
	require.Error(t, gotErr)
}
