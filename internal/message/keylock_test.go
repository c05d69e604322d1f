package message

import (
	"sync"
	"testing"
)

func TestKeyLockerSerializesSameKey(t *testing.T) {
	t.Parallel()

	locker := newKeyLocker()
	key := Key{ConversationID: "c", MessageID: "m"}
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locker.Lock(key)
			defer unlock()
			counter++
		}()
	}
	wg.Wait()
	if counter != 50 {
		t.Fatalf("counter = %d, want 50", counter)
	}
	if n := locker.size(); n != 0 {
		t.Fatalf("lock entries leaked: %d", n)
	}
}

func TestKeyLockerIndependentKeys(t *testing.T) {
	t.Parallel()

	locker := newKeyLocker()
	unlockA := locker.Lock(Key{ConversationID: "c", MessageID: "a"})
	done := make(chan struct{})
	go func() {
		unlock := locker.Lock(Key{ConversationID: "c", MessageID: "b"})
		unlock()
		close(done)
	}()
	<-done
	unlockA()
}
