// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Dodobot serialbridge Authors

package dodolink

import (
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
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

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

func randomArg(rng *rand.Rand) Arg {
	switch rng.Intn(4) {
	case 0:
		return Int(rng.Int31() - rng.Int31())
	case 1:
		return Uint(rng.Uint32())
	case 2:
		const letters = "abcdefghijklmnopqrstuvwxyz0123456789_-"
		b := make([]byte, 1+rng.Intn(12))
		for i := range b {
			b[i] = letters[rng.Intn(len(letters))]
		}
		return Str(string(b))
	default:
		return Float((rng.Float64() - 0.5) * 20000)
	}
}

// ============================================================
// Round Trip Fuzz Tests
// ============================================================

func TestFuzz_EncodeDecodeRoundTrip(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()
	categories := []string{"drive", "grip", "tilter", "linear", "ks", "<>", "[]", "?", "enc", "batt"}

	d, session := newTestDecoder()
	for i := 0; i < rounds; i++ {
		seq := session.ReadSeq()
		category := categories[rng.Intn(len(categories))]
		args := make([]Arg, rng.Intn(8))
		want := make([]string, len(args))
		for j := range args {
			args[j] = randomArg(rng)
			want[j] = args[j].String()
		}

		pkt, err := d.Decode(body(EncodeFrame(seq, category, args...)))
		require.NoError(t, err, "round %d", i)
		assert.Equal(t, seq, pkt.Seq)
		assert.Equal(t, category, pkt.Category)
		assert.Equal(t, want, pkt.Fields.All())
		assert.False(t, pkt.Resynced)
	}
}

func TestFuzz_CorruptedFramesNeverPanic(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	d, session := newTestDecoder()
	for i := 0; i < rounds; i++ {
		frame := body(EncodeFrame(uint64(i), "enc", randomArg(rng), randomArg(rng)))
		frame[rng.Intn(len(frame))] ^= byte(1 + rng.Intn(255))

		pkt, err := d.Decode(frame)
		if err == nil {
			require.NotNil(t, pkt)
			assert.Equal(t, pkt.Seq+1, session.ReadSeq())
		} else {
			var de *DecodeError
			require.ErrorAs(t, err, &de)
			assert.Greater(t, session.ReadSeq(), uint64(0))
		}
	}
}

func FuzzDecode(f *testing.F) {
	f.Add(body(EncodeFrame(0, "ready", Uint(1000), Str("dodobot"))))
	f.Add(body(EncodeFrame(7, "batt", Uint(1), Float(250.5), Str(""), Float(12.6))))
	f.Add([]byte("0\t"))
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, frame []byte) {
		session := NewSession(newFakeClock())
		d := NewDecoder(session, zerolog.Nop())
		disp := NewDispatcher(session, nil, NewStatistics(newFakeClock()), zerolog.Nop())

		pkt, err := d.Decode(frame)
		if err != nil {
			if !IsKind(err, KindTooShort) && !IsKind(err, KindChecksumMismatch) &&
				!IsKind(err, KindMissingSequenceField) && !IsKind(err, KindMissingCategoryField) &&
				!IsKind(err, KindInvalidField) {
				t.Fatalf("unexpected error type: %v", err)
			}
			return
		}
		_ = disp.Dispatch(pkt)
	})
}
