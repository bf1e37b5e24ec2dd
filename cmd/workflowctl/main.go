// Command workflowctl is the minimal CLI surface over the engine's HTTP API
// (§6): trigger, status, cancel, and list. It never touches the database or
// queue directly — every subcommand is a thin HTTP client against
// workflowengine.
//
// Grounded on the subcommand-via-flag.NewFlagSet shape used throughout the
// pack's CLI entrypoints (e.g. the Neo contract deploy tool), since no
// example in the corpus reaches for cobra as a direct dependency.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func main() {
	triggerCmd := flag.NewFlagSet("trigger", flag.ExitOnError)
	statusCmd := flag.NewFlagSet("status", flag.ExitOnError)
	cancelCmd := flag.NewFlagSet("cancel", flag.ExitOnError)
	listCmd := flag.NewFlagSet("list", flag.ExitOnError)

	baseURL := getEnv("WORKFLOWENGINE_URL", "http://localhost:8080")
	triggerBase := triggerCmd.String("server", baseURL, "workflowengine base URL")
	statusBase := statusCmd.String("server", baseURL, "workflowengine base URL")
	cancelBase := cancelCmd.String("server", baseURL, "workflowengine base URL")
	listBase := listCmd.String("server", baseURL, "workflowengine base URL")
	listArticle := listCmd.String("article-id", "", "filter by article ID")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	client := &http.Client{Timeout: 10 * time.Second}

	switch os.Args[1] {
	case "trigger":
		triggerCmd.Parse(os.Args[2:])
		if triggerCmd.NArg() < 1 {
			fmt.Fprintln(os.Stderr, "usage: workflowctl trigger <article_id>")
			os.Exit(1)
		}
		runTrigger(client, *triggerBase, triggerCmd.Arg(0))
	case "status":
		statusCmd.Parse(os.Args[2:])
		if statusCmd.NArg() < 1 {
			fmt.Fprintln(os.Stderr, "usage: workflowctl status <execution_id>")
			os.Exit(1)
		}
		runStatus(client, *statusBase, statusCmd.Arg(0))
	case "cancel":
		cancelCmd.Parse(os.Args[2:])
		if cancelCmd.NArg() < 1 {
			fmt.Fprintln(os.Stderr, "usage: workflowctl cancel <execution_id>")
			os.Exit(1)
		}
		runCancel(client, *cancelBase, cancelCmd.Arg(0))
	case "list":
		listCmd.Parse(os.Args[2:])
		runList(client, *listBase, *listArticle)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`workflowctl — engine control CLI

Usage:
  workflowctl trigger <article_id>     trigger an execution for an article
  workflowctl status <execution_id>    show an execution and its stage results
  workflowctl cancel <execution_id>    request cancellation of a running execution
  workflowctl list [-article-id <id>]  list recent executions`)
}

func runTrigger(client *http.Client, base, articleID string) {
	resp, err := client.Post(base+"/workflow/articles/"+articleID+"/trigger", "application/json", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "trigger request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	printJSON(resp)
}

func runStatus(client *http.Client, base, executionID string) {
	resp, err := client.Get(base + "/workflow/executions/" + executionID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "status request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	printJSON(resp)
}

func runCancel(client *http.Client, base, executionID string) {
	req, err := http.NewRequest(http.MethodPost, base+"/workflow/executions/"+executionID+"/cancel", bytes.NewReader(nil))
	if err != nil {
		fmt.Fprintf(os.Stderr, "build cancel request: %v\n", err)
		os.Exit(1)
	}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cancel request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	fmt.Printf("status: %s\n", resp.Status)
}

func runList(client *http.Client, base, articleID string) {
	url := base + "/workflow/executions"
	if articleID != "" {
		url += "?article_id=" + articleID
	}
	resp, err := client.Get(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	printJSON(resp)
}

func printJSON(resp *http.Response) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read response: %v\n", err)
		os.Exit(1)
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		fmt.Println(string(body))
		return
	}
	fmt.Println(pretty.String())
	if resp.StatusCode >= 400 {
		os.Exit(1)
	}
}
