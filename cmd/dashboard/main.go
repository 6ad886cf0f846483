//go:build dashboard

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rivo/tview"
)

// deadLetterItem mirrors the shape the dead-letter endpoint returns for
// each command_queue_items row.
type deadLetterItem struct {
	ID         string `json:"ID"`
	CommandID  string `json:"CommandID"`
	Status     string `json:"Status"`
	RetryCount int    `json:"RetryCount"`
	UpdatedAt  string `json:"UpdatedAt"`
}

type deadLetterResponse struct {
	Items []deadLetterItem `json:"items"`
}

func apiBase() string {
	if v := os.Getenv("LEDGER_API_URL"); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func fetchDeadLetters() ([]deadLetterItem, error) {
	resp, err := http.Get(apiBase() + "/commands/dead-letter")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var body deadLetterResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body.Items, nil
}

func main() {
	app := tview.NewApplication()
	table := tview.NewTable().SetBorders(true)

	update := func() {
		items, err := fetchDeadLetters()
		if err != nil {
			return
		}
		app.QueueUpdateDraw(func() {
			table.Clear()
			headers := []string{"Queue Item", "Command", "Status", "Retries", "Updated"}
			for i, h := range headers {
				table.SetCell(0, i, tview.NewTableCell(h).SetSelectable(false))
			}
			for i, it := range items {
				table.SetCell(i+1, 0, tview.NewTableCell(it.ID))
				table.SetCell(i+1, 1, tview.NewTableCell(it.CommandID))
				table.SetCell(i+1, 2, tview.NewTableCell(it.Status))
				table.SetCell(i+1, 3, tview.NewTableCell(fmt.Sprintf("%d", it.RetryCount)))
				table.SetCell(i+1, 4, tview.NewTableCell(it.UpdatedAt))
			}
		})
	}

	go func() {
		for {
			update()
			time.Sleep(2 * time.Second)
		}
	}()

	if err := app.SetRoot(table, true).Run(); err != nil {
		panic(err)
	}
}
