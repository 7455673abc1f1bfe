package journal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDirLocks_MutualExclusion(t *testing.T) {
	locks := NewDirLocks()

	release := locks.Lock("/home/user/Downloads")

	acquired := make(chan struct{})

	go func() {
		r := locks.Lock("/home/user/Downloads")
		defer r()

		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while the first is held")
	case <-time.After(50 * time.Millisecond):
	}

	release()

	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("second lock never acquired after release")
	}
}

func TestDirLocks_DifferentDirectoriesAreIndependent(t *testing.T) {
	locks := NewDirLocks()

	release := locks.Lock("/home/user/Downloads")
	defer release()

	done := make(chan struct{})

	go func() {
		r := locks.Lock("/home/user/Photos")
		r()

		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("unrelated directory lock blocked")
	}
}

func TestDirLocks_KeyedByCleanedPath(t *testing.T) {
	locks := NewDirLocks()

	release := locks.Lock("/home/user/Downloads")

	acquired := make(chan struct{})

	go func() {
		// Same directory spelled differently must hit the same lock.
		r := locks.Lock("/home/user/Photos/../Downloads/")
		defer r()

		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("differently spelled path bypassed the lock")
	case <-time.After(50 * time.Millisecond):
	}

	release()

	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("lock never acquired after release")
	}
}

func TestDirLocks_SequentialReuse(t *testing.T) {
	locks := NewDirLocks()

	for i := 0; i < 3; i++ {
		release := locks.Lock("/d")
		release()
	}

	assert.Len(t, locks.locks, 1)
}
