// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync"
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeClockNow(t *testing.T) {
	clock := Fake(epoch)
	if got := clock.Now(); !got.Equal(epoch) {
		t.Fatalf("Now() = %v, want %v", got, epoch)
	}
	if got := clock.Now(); !got.Equal(epoch) {
		t.Fatalf("second Now() = %v, want the clock to stand still", got)
	}

	clock.Advance(5 * time.Second)
	want := epoch.Add(5 * time.Second)
	if got := clock.Now(); !got.Equal(want) {
		t.Fatalf("Now() after Advance = %v, want %v", got, want)
	}
}

func TestFakeClockSet(t *testing.T) {
	clock := Fake(epoch)
	earlier := epoch.Add(-time.Hour)
	clock.Set(earlier)
	if got := clock.Now(); !got.Equal(earlier) {
		t.Fatalf("Now() after Set = %v, want %v", got, earlier)
	}
}

func TestFakeClockStep(t *testing.T) {
	clock := Fake(epoch)
	clock.SetStep(time.Millisecond)

	first := clock.Now()
	second := clock.Now()
	if !second.After(first) {
		t.Fatalf("step clock did not advance: %v then %v", first, second)
	}
	if second.Sub(first) != time.Millisecond {
		t.Errorf("step = %v, want 1ms", second.Sub(first))
	}
}

func TestFakeClockConcurrentUse(t *testing.T) {
	clock := Fake(epoch)
	clock.SetStep(time.Nanosecond)

	const goroutines = 8
	const readsEach = 100

	var waitGroup sync.WaitGroup
	for range goroutines {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			for range readsEach {
				clock.Now()
			}
		}()
	}
	waitGroup.Wait()

	want := epoch.Add(goroutines * readsEach * time.Nanosecond)
	if got := clock.Now(); !got.Equal(want) {
		t.Errorf("Now() = %v, want %v after all reads", got, want)
	}
}

func TestRealClock(t *testing.T) {
	before := time.Now()
	got := Real().Now()
	if got.Before(before) {
		t.Errorf("Real().Now() = %v is before %v", got, before)
	}
}
