package localstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"todo-sync/internal/models"
)

func TestPartitionSplitsAndSorts(t *testing.T) {
	t1 := t0
	t2 := t0.Add(time.Hour)
	done := todo("done", "paid rent", true, t1)
	open := todo("open", "call mum", false, t2)

	for _, list := range []models.Snapshot{{done, open}, {open, done}} {
		active, completed := Partition(list)
		assert.Equal(t, []models.Todo{open}, active)
		assert.Equal(t, []models.Todo{done}, completed)
	}
}

func TestPartitionNewestFirst(t *testing.T) {
	a := todo("a", "a", false, t0)
	b := todo("b", "b", false, t0.Add(2*time.Minute))
	c := todo("c", "c", false, t0.Add(time.Minute))
	active, completed := Partition(models.Snapshot{a, b, c})
	assert.Equal(t, []string{"b", "c", "a"}, ids(active))
	assert.Empty(t, completed)
}

func TestPartitionTieBreaksOnID(t *testing.T) {
	a := todo("a", "a", false, t0)
	b := todo("b", "b", false, t0)
	first, _ := Partition(models.Snapshot{b, a})
	second, _ := Partition(models.Snapshot{a, b})
	assert.Equal(t, ids(first), ids(second))
}

func ids(list []models.Todo) []string {
	out := make([]string, 0, len(list))
	for _, t := range list {
		out = append(out, t.ID)
	}
	return out
}
