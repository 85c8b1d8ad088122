// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hostlink

import (
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// newFuzzRng creates a random number generator from FUZZ_SEED or the clock
// and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := time.Now().UnixNano()
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if s, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			seed = s
		}
	}
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// randomPayload builds a payload map with 0-5 entries
func randomPayload(rng *rand.Rand) map[int]any {
	n := rng.Intn(6)
	if n == 0 {
		return nil
	}
	m := make(map[int]any, n)
	for range n {
		key := rng.Intn(10)
		switch rng.Intn(4) {
		case 0:
			m[key] = rng.Uint64()
		case 1:
			m[key] = -rng.Int63()
		case 2:
			m[key] = rng.Float64()
		case 3:
			buf := make([]byte, 8)
			rng.Read(buf)
			m[key] = buf
		}
	}
	return m
}

func TestFuzzDecoder_RandomBytes(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)

	for range rounds {
		d := NewDecoder()
		data := make([]byte, rng.Intn(512)+1)
		rng.Read(data)

		assert.NotPanics(t, func() {
			for _, b := range data {
				p, _ := d.DecodeByte(b)
				if p != nil {
					_ = p.ParseError()
				}
			}
		})
	}
}

func TestFuzzDecoder_RandomPackets(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	d := NewDecoder()

	for i := range rounds {
		address := rng.Uint64()
		msgType := uint8(rng.Intn(256))
		payload := randomPayload(rng)

		data, err := Encode(address, msgType, payload)
		require.NoError(t, err, "round %d", i)

		packets, errs := d.Decode(data)
		require.Empty(t, errs, "round %d", i)
		require.Len(t, packets, 1, "round %d", i)

		p := packets[0]
		require.NoError(t, p.ParseError(), "round %d", i)
		assert.Equal(t, address, p.Address(), "round %d", i)
		assert.Equal(t, msgType, p.Type(), "round %d", i)
		assert.Len(t, p.PayloadMap(), len(payload), "round %d", i)
	}
}

func TestFuzzDecoder_CorruptedPackets(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)

	for range rounds {
		data, err := Encode(rng.Uint64(), uint8(rng.Intn(256)), randomPayload(rng))
		require.NoError(t, err)

		// Corrupt one byte between START and END
		idx := rng.Intn(len(data)-2) + 1
		data[idx] ^= byte(rng.Intn(255) + 1)

		d := NewDecoder()
		assert.NotPanics(t, func() { d.Decode(data) })
	}
}

func TestFuzzDecoder_MissingBytes(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)

	for range rounds {
		data, err := Encode(rng.Uint64(), uint8(rng.Intn(256)), randomPayload(rng))
		require.NoError(t, err)

		idx := rng.Intn(len(data)-2) + 1
		data = append(data[:idx], data[idx+1:]...)

		d := NewDecoder()
		assert.NotPanics(t, func() { d.Decode(data) })
	}
}

func TestFuzzDecoder_BackToBack(t *testing.T) {
	rounds := getFuzzRounds() / 10
	rng := newFuzzRng(t)

	var stream []byte
	var want []uint64
	for range rounds {
		address := rng.Uint64()
		data, err := Encode(address, MsgPingRequest, nil)
		require.NoError(t, err)
		stream = append(stream, data...)
		want = append(want, address)
	}

	packets, errs := NewDecoder().Decode(stream)
	require.Empty(t, errs)
	require.Len(t, packets, len(want))
	for i, p := range packets {
		assert.Equal(t, want[i], p.Address())
	}
}
