package host

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rileyhilliard/dgxops/internal/models"
	sshtest "github.com/rileyhilliard/dgxops/pkg/sshutil/testing"
	"github.com/stretchr/testify/assert"
)

func TestSessionTable_UnknownIsOffline(t *testing.T) {
	table := newSessionTable()

	assert.Equal(t, models.StatusOffline, table.state("nope").Status)
	assert.Nil(t, table.client("nope"))
	assert.Empty(t, table.live())
}

func TestSessionTable_AttachReplacesExisting(t *testing.T) {
	table := newSessionTable()
	first := sshtest.NewMockClient("a")
	second := sshtest.NewMockClient("a")

	ctx1, cancel1 := context.WithCancel(context.Background())
	table.attach("a", first, cancel1, time.Now())
	table.attach("a", second, func() {}, time.Now())

	assert.True(t, first.IsClosed(), "old handle must be closed")
	assert.Error(t, ctx1.Err(), "old tasks must be cancelled")
	assert.False(t, second.IsClosed())
	assert.Same(t, second, table.client("a"))
	assert.Equal(t, []string{"a"}, table.live())
}

func TestSessionTable_Detach(t *testing.T) {
	table := newSessionTable()
	client := sshtest.NewMockClient("a")
	table.attach("a", client, nil, time.Now())

	assert.True(t, table.detach("a", models.StatusOffline, ""))
	assert.True(t, client.IsClosed())
	assert.Nil(t, table.client("a"))

	// second detach is a no-op
	assert.False(t, table.detach("a", models.StatusOffline, ""))
	assert.Equal(t, models.StatusOffline, table.state("a").Status)
}

func TestSessionTable_DetachIfIgnoresStaleHandle(t *testing.T) {
	table := newSessionTable()
	old := sshtest.NewMockClient("a")
	current := sshtest.NewMockClient("a")
	table.attach("a", old, nil, time.Now())
	table.attach("a", current, nil, time.Now())

	assert.False(t, table.detachIf("a", old, models.StatusError, "boom"))
	assert.Equal(t, models.StatusOnline, table.state("a").Status)

	assert.True(t, table.detachIf("a", current, models.StatusError, "boom"))
	st := table.state("a")
	assert.Equal(t, models.StatusError, st.Status)
	assert.Equal(t, "boom", st.ErrorMessage)
}

func TestSessionTable_Touch(t *testing.T) {
	table := newSessionTable()
	client := sshtest.NewMockClient("a")
	start := time.Now().Add(-time.Minute)
	table.attach("a", client, nil, start)

	later := start.Add(30 * time.Second)
	table.touch("a", sshtest.NewMockClient("a"), later.Add(time.Hour))
	assert.Equal(t, start, *table.state("a").LastPing, "touch with a foreign handle is ignored")

	table.touch("a", client, later)
	assert.Equal(t, later, *table.state("a").LastPing)
}

func TestSessionTable_CloseAll(t *testing.T) {
	table := newSessionTable()
	a := sshtest.NewMockClient("a")
	b := sshtest.NewMockClient("b")
	table.attach("a", a, nil, time.Now())
	table.attach("b", b, nil, time.Now())

	table.closeAll()

	assert.True(t, a.IsClosed())
	assert.True(t, b.IsClosed())
	assert.Empty(t, table.live())
	assert.Equal(t, models.StatusOffline, table.state("b").Status)
}

func TestSessionTable_ThreadSafety(t *testing.T) {
	table := newSessionTable()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := []string{"a", "b", "c"}[i%3]
			table.attach(id, sshtest.NewMockClient(id), nil, time.Now())
			_ = table.state(id)
			_ = table.client(id)
			table.detach(id, models.StatusOffline, "")
		}(i)
	}
	wg.Wait()

	assert.Empty(t, table.live())
}
