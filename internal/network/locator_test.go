package network

import (
	"testing"

	"github.com/klingnet-labs/klingnet-node/pkg/types"
)

// hashForHeight gives each height a distinct, deterministic hash so tests
// can assert on which heights a locator actually contains.
func hashForHeight(h uint64) types.Hash {
	var out types.Hash
	out[0] = byte(h)
	out[1] = byte(h >> 8)
	return out
}

func TestBuildLocator_DescendingPowersOfTwoPlusGenesis(t *testing.T) {
	hashAt := func(h uint64) (types.Hash, bool) {
		return hashForHeight(h), true
	}

	locator := BuildLocator(10, hashAt)

	// Expected heights per the descending powers-of-two walk from height
	// 10: step doubles (1, 2, 4, 8, ...) after each subtraction, landing
	// on 10, 9, 7, 3, then clamping to genesis (0).
	wantHeights := []uint64{10, 9, 7, 3, 0}
	if len(locator) != len(wantHeights) {
		t.Fatalf("locator has %d entries, want %d (%v)", len(locator), len(wantHeights), wantHeights)
	}
	for i, h := range wantHeights {
		if locator[i] != hashForHeight(h) {
			t.Errorf("locator[%d] = height hash %v, want height %d's hash", i, locator[i], h)
		}
	}
}

func TestBuildLocator_AlwaysEndsWithGenesis(t *testing.T) {
	hashAt := func(h uint64) (types.Hash, bool) {
		return hashForHeight(h), true
	}

	for _, height := range []uint64{0, 1, 2, 3, 100} {
		locator := BuildLocator(height, hashAt)
		if len(locator) == 0 {
			t.Fatalf("height %d: locator is empty", height)
		}
		if locator[len(locator)-1] != hashForHeight(0) {
			t.Errorf("height %d: locator does not end at genesis", height)
		}
	}
}

func TestBuildLocator_SkipsMissingHeights(t *testing.T) {
	// Only genesis and the tip are known locally.
	hashAt := func(h uint64) (types.Hash, bool) {
		if h == 0 || h == 5 {
			return hashForHeight(h), true
		}
		return types.Hash{}, false
	}

	locator := BuildLocator(5, hashAt)
	if len(locator) != 2 {
		t.Fatalf("locator = %v, want exactly [tip, genesis]", locator)
	}
	if locator[0] != hashForHeight(5) || locator[1] != hashForHeight(0) {
		t.Fatalf("locator = %v, want [tip(5), genesis(0)]", locator)
	}
}

func TestBuildLocator_GenesisOnly(t *testing.T) {
	hashAt := func(h uint64) (types.Hash, bool) {
		return hashForHeight(h), true
	}
	locator := BuildLocator(0, hashAt)
	if len(locator) != 1 || locator[0] != hashForHeight(0) {
		t.Fatalf("locator at height 0 = %v, want [genesis]", locator)
	}
}
