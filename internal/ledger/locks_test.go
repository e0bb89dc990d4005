package ledger

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccountLocks_SerializesSameAccount(t *testing.T) {
	locks := newAccountLocks()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock("acct-1")
			defer unlock()
			v := counter
			v++
			counter = v
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, locks.size())
}

func TestAccountLocks_IndependentAccounts(t *testing.T) {
	locks := newAccountLocks()
	unlockA := locks.lock("a")
	unlockB := locks.lock("b")
	assert.Equal(t, 2, locks.size())
	unlockA()
	unlockB()
	assert.Equal(t, 0, locks.size())
}
