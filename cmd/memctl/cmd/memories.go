package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/DrJLabs/Forgetful-sub001/internal/models"
)

var (
	searchTopK    int
	listLimit     int
	listOffset    int
	historyLimit  int
	deleteConfirm bool
)

var memoriesCmd = &cobra.Command{
	Use:   "memories",
	Short: "Store, search and manage memories",
}

var addCmd = &cobra.Command{
	Use:   "add [text]",
	Short: "Store new information as memories",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		addMemories(strings.Join(args, " "))
	},
}

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search memories by meaning",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		searchMemories(strings.Join(args, " "))
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored memories",
	Run: func(cmd *cobra.Command, args []string) {
		listMemories()
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the state transition log",
	Run: func(cmd *cobra.Command, args []string) {
		showHistory()
	},
}

var deleteAllCmd = &cobra.Command{
	Use:   "delete-all",
	Short: "Delete every memory of the owner",
	Run: func(cmd *cobra.Command, args []string) {
		deleteAllMemories()
	},
}

func init() {
	rootCmd.AddCommand(memoriesCmd)
	memoriesCmd.AddCommand(addCmd)
	memoriesCmd.AddCommand(searchCmd)
	memoriesCmd.AddCommand(listCmd)
	memoriesCmd.AddCommand(historyCmd)
	memoriesCmd.AddCommand(deleteAllCmd)

	searchCmd.Flags().IntVar(&searchTopK, "top-k", 0, "maximum number of results")
	listCmd.Flags().IntVar(&listLimit, "limit", 100, "maximum number of memories to list")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "number of memories to skip")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 100, "maximum number of entries")
	deleteAllCmd.Flags().BoolVar(&deleteConfirm, "yes", false, "confirm the deletion")
}

// ownerQuery builds the common query string parameters.
func ownerQuery(extra url.Values) string {
	q := url.Values{}
	for k, vs := range extra {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	if userID != "" {
		q.Set("user_id", userID)
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

func addMemories(text string) {
	payload := map[string]interface{}{
		"messages": []map[string]string{{"role": "user", "content": text}},
	}
	if userID != "" {
		payload["user_id"] = userID
	}

	data := request(http.MethodPost, "/api/v1/memories", payload)

	var result models.CombinedResult
	if err := json.Unmarshal(data, &result); err != nil {
		log.Fatalf("Error decoding response: %v", err)
	}
	if len(result.Facts) == 0 {
		fmt.Println("No memory changes (everything was already known).")
	} else {
		fmt.Printf("Applied %d change(s):\n", len(result.Facts))
	}
	printJSON(data)
}

func searchMemories(query string) {
	payload := map[string]interface{}{"query": query}
	if searchTopK > 0 {
		payload["top_k"] = searchTopK
	}
	if userID != "" {
		payload["user_id"] = userID
	}

	data := request(http.MethodPost, "/api/v1/memories/search", payload)

	var body struct {
		Results []models.ScoredFact `json:"results"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		log.Fatalf("Error decoding response: %v", err)
	}
	if len(body.Results) == 0 {
		fmt.Println("No matching memories.")
		return
	}
	for _, hit := range body.Results {
		fmt.Printf("%.3f  %s  %s\n", hit.Score, hit.Fact.ID, hit.Fact.Content)
	}
}

func listMemories() {
	q := ownerQuery(url.Values{
		"limit":  []string{strconv.Itoa(listLimit)},
		"offset": []string{strconv.Itoa(listOffset)},
	})
	data := request(http.MethodGet, "/api/v1/memories"+q, nil)

	var body struct {
		Memories []*models.Fact `json:"memories"`
		Count    int            `json:"count"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		log.Fatalf("Error decoding response: %v", err)
	}
	if body.Count == 0 {
		fmt.Println("No memories stored.")
		return
	}
	for _, fact := range body.Memories {
		fmt.Printf("%s  %s\n", fact.ID, fact.Content)
	}
}

func showHistory() {
	q := ownerQuery(url.Values{"limit": []string{strconv.Itoa(historyLimit)}})
	data := request(http.MethodGet, "/api/v1/memories/history"+q, nil)

	var body struct {
		History []models.HistoryEntry `json:"history"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		log.Fatalf("Error decoding response: %v", err)
	}
	if len(body.History) == 0 {
		fmt.Println("No history recorded.")
		return
	}
	for _, entry := range body.History {
		prev := string(entry.PreviousState)
		if prev == "" {
			prev = "new"
		}
		content := entry.NewContent
		if content == "" {
			content = entry.PreviousContent
		}
		fmt.Printf("%s  %s  %s -> %s  %s\n",
			entry.CreatedAt.Format(time.RFC3339), entry.FactID, prev, entry.NewState, content)
	}
}

func deleteAllMemories() {
	if !deleteConfirm {
		log.Fatalf("Refusing to delete all memories without --yes")
	}

	data := request(http.MethodDelete, "/api/v1/memories"+ownerQuery(nil), nil)

	var result models.CombinedResult
	if err := json.Unmarshal(data, &result); err != nil {
		log.Fatalf("Error decoding response: %v", err)
	}
	fmt.Printf("Deleted %d memor%s.\n", len(result.Facts), pluralY(len(result.Facts)))
	if len(result.Errors) > 0 {
		fmt.Printf("%d deletion(s) failed:\n", len(result.Errors))
		for _, e := range result.Errors {
			fmt.Printf("  [%s] %s\n", e.Stage, e.Message)
		}
	}
}

func pluralY(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
