package localstore

import (
	"sort"

	"todo-sync/internal/models"
)

// Partition splits records into active and completed, each sorted by CreatedAt
// descending. Ties break on id so the result does not depend on input order.
func Partition(list models.Snapshot) (active, completed []models.Todo) {
	active = []models.Todo{}
	completed = []models.Todo{}
	for _, t := range list {
		if t.Completed {
			completed = append(completed, t)
		} else {
			active = append(active, t)
		}
	}
	sortNewestFirst(active)
	sortNewestFirst(completed)
	return active, completed
}

func sortNewestFirst(list []models.Todo) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
}
