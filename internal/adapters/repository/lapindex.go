package repository

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/okian/laptimer/internal/domain/laps"
	"github.com/okian/laptimer/internal/domain/model"
	"github.com/okian/laptimer/internal/domain/types"
)

// Treap ordered by lap time ascending, then race ID and lap number, so an
// in-order walk yields the leaderboard from fastest to slowest.

// lapMicros is a lap time in fixed-point microseconds.
type lapMicros int64

func toMicros(seconds float64) lapMicros {
	return lapMicros(math.Round(seconds * 1e6))
}

type lapKey struct {
	time   lapMicros
	raceID string
	lap    int
}

func (a lapKey) less(b lapKey) bool {
	if a.time != b.time {
		return a.time < b.time
	}
	if a.raceID != b.raceID {
		return a.raceID < b.raceID
	}
	return a.lap < b.lap
}

type lapNode struct {
	key        lapKey
	seconds    float64
	recordedAt time.Time
	prio       uint64
	left       *lapNode
	right      *lapNode
	size       int
}

func nsize(n *lapNode) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *lapNode) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

func rotateRight(y *lapNode) *lapNode {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *lapNode) *lapNode {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n, nn *lapNode) *lapNode {
	if n == nil {
		return nn
	}
	if nn.key.less(n.key) {
		n.left = insert(n.left, nn)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, nn)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *lapNode, key lapKey) *lapNode {
	if n == nil {
		return nil
	}
	switch {
	case key == n.key:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, key)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, key)
		}
	case key.less(n.key):
		n.left = deleteNode(n.left, key)
	default:
		n.right = deleteNode(n.right, key)
	}
	fix(n)
	return n
}

// collectTop appends up to limit entries in rank order.
func collectTop(n *lapNode, limit int, out *[]types.LapEntry) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTop(n.left, limit, out)
	if len(*out) < limit {
		*out = append(*out, types.LapEntry{
			RaceID:     n.key.raceID,
			LapNumber:  n.key.lap,
			Seconds:    n.seconds,
			Formatted:  laps.FormatSeconds(n.seconds),
			RecordedAt: n.recordedAt,
		})
	}
	if len(*out) < limit {
		collectTop(n.right, limit, out)
	}
}

// lapIndex ranks every lap of every stored result. Not safe for concurrent
// use; stores guard it with their own lock.
type lapIndex struct {
	root *lapNode
	rng  *rand.Rand
}

func newLapIndex() *lapIndex {
	return &lapIndex{rng: rand.New(rand.NewPCG(0x1a9, 0x71e))}
}

func (ix *lapIndex) add(r model.RaceResult) {
	for i, s := range r.LapTimes {
		ix.root = insert(ix.root, &lapNode{
			key:        lapKey{time: toMicros(s), raceID: r.ID, lap: i + 1},
			seconds:    s,
			recordedAt: r.Timestamp,
			prio:       ix.rng.Uint64(),
			size:       1,
		})
	}
}

func (ix *lapIndex) remove(r model.RaceResult) {
	for i, s := range r.LapTimes {
		ix.root = deleteNode(ix.root, lapKey{time: toMicros(s), raceID: r.ID, lap: i + 1})
	}
}

func (ix *lapIndex) len() int { return nsize(ix.root) }

func (ix *lapIndex) top(n int) []types.LapEntry {
	out := make([]types.LapEntry, 0, min(n, ix.len()))
	collectTop(ix.root, n, &out)
	assignRanksWithTies(out)
	return out
}

// assignRanksWithTies gives equal lap times the same rank; the next distinct
// time gets the next consecutive rank.
func assignRanksWithTies(entries []types.LapEntry) {
	rank := 0
	var prev lapMicros = -1
	for i := range entries {
		t := toMicros(entries[i].Seconds)
		if t != prev {
			rank++
			prev = t
		}
		entries[i].Rank = rank
	}
}
