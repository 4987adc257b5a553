// Seed fills the todos table with sample rows. Run from project root:
//
//	go run ./scripts/seed [count]
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"todo-sync/internal/config"
	"todo-sync/internal/database"
)

const batchSize = 500

var authors = []struct{ id, name string }{
	{"ann@example.com", "Ann"},
	{"bob@example.com", "Bob"},
	{"cho@example.com", ""},
}

func main() {
	config.LoadEnvFile(".env")

	total := 1_000
	if len(os.Args) > 1 {
		n, err := strconv.Atoi(os.Args[1])
		if err != nil || n <= 0 {
			fmt.Fprintln(os.Stderr, "count must be a positive number")
			os.Exit(2)
		}
		total = n
	}

	ctx := context.Background()
	if err := database.MigrateOrCreateSchema(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Schema failed:", err)
		os.Exit(1)
	}
	db := database.DB(ctx)

	start := time.Now()
	base := start.Add(-time.Duration(total) * time.Minute)
	for done := 0; done < total; {
		n := min(batchSize, total-done)
		args := make([]interface{}, 0, n*7)
		placeholders := make([]string, 0, n)
		for i := 0; i < n; i++ {
			k := done + i + 1
			a := authors[k%len(authors)]
			p := 7 * i
			placeholders = append(placeholders, fmt.Sprintf("($%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d)",
				p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+7))
			var description interface{}
			if k%3 == 0 {
				description = fmt.Sprintf("Details for todo %d", k)
			}
			args = append(args,
				uuid.NewString(),
				fmt.Sprintf("Todo %d", k),
				description,
				k%4 == 0,
				a.id,
				a.name,
				base.Add(time.Duration(k)*time.Minute).UTC(),
			)
		}
		q := `INSERT INTO todos (id, text, description, completed, created_by, display_name, created_at, updated_at) VALUES ` +
			strings.Join(placeholders, ",")
		if _, err := db.ExecContext(ctx, q, args...); err != nil {
			fmt.Fprintln(os.Stderr, "Insert failed:", err)
			os.Exit(1)
		}
		done += n
		fmt.Printf("\rInserted %d / %d", done, total)
	}

	fmt.Printf("\nDone: %d todos in %v\n", total, time.Since(start))
}
