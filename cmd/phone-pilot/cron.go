package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

func runCron(args []string) {
	if len(args) == 0 {
		printCronUsage()
		return
	}

	switch args[0] {
	case "add":
		runCronAdd(args[1:])
	case "list":
		runCronList(args[1:])
	case "del", "delete", "rm", "remove":
		runCronDel(args[1:])
	case "--help", "-h", "help":
		printCronUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown cron subcommand: %s\n", args[0])
		printCronUsage()
		os.Exit(1)
	}
}

func runCronAdd(args []string) {
	var device, cronExpr, task, desc, dataDir string

	var positional []string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--device", "-d":
			if i+1 < len(args) {
				i++
				device = args[i]
			}
		case "--cron", "-c":
			if i+1 < len(args) {
				i++
				cronExpr = args[i]
			}
		case "--task":
			if i+1 < len(args) {
				i++
				task = args[i]
			}
		case "--desc", "--description":
			if i+1 < len(args) {
				i++
				desc = args[i]
			}
		case "--data-dir":
			if i+1 < len(args) {
				i++
				dataDir = args[i]
			}
		case "--help", "-h":
			printCronAddUsage()
			return
		default:
			positional = append(positional, args[i])
		}
	}

	// If cron expr not provided via --cron, try positional: first 5 fields are cron, rest is task
	if cronExpr == "" && len(positional) >= 6 {
		cronExpr = strings.Join(positional[:5], " ")
		if task == "" {
			task = strings.Join(positional[5:], " ")
		}
	} else if task == "" && len(positional) > 0 {
		task = strings.Join(positional, " ")
	}

	if cronExpr == "" || task == "" {
		fmt.Fprintln(os.Stderr, "Error: cron expression and task are required")
		printCronAddUsage()
		os.Exit(1)
	}

	sockPath := resolveSocketPath(dataDir)
	if _, err := os.Stat(sockPath); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error: phone-pilot is not running (socket not found: %s)\n", sockPath)
		os.Exit(1)
	}

	payload, _ := json.Marshal(map[string]string{
		"device":      device,
		"cron_expr":   cronExpr,
		"task":        task,
		"description": desc,
	})

	body := mustPost(sockPath, "/cron/add", payload)

	var result map[string]any
	json.Unmarshal(body, &result)
	fmt.Printf("Cron job created: %s\n", result["id"])
	fmt.Printf("Schedule: %s\n", result["cron_expr"])
	fmt.Printf("Task: %s\n", result["task"])
}

func runCronList(args []string) {
	var device, dataDir string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--device", "-d":
			if i+1 < len(args) {
				i++
				device = args[i]
			}
		case "--data-dir":
			if i+1 < len(args) {
				i++
				dataDir = args[i]
			}
		}
	}

	sockPath := resolveSocketPath(dataDir)
	if _, err := os.Stat(sockPath); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error: phone-pilot is not running (socket not found: %s)\n", sockPath)
		os.Exit(1)
	}

	url := "/cron/list"
	if device != "" {
		url += "?device=" + device
	}

	resp, err := socketClient(sockPath).Get("http://unix" + url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Error: %s\n", strings.TrimSpace(string(body)))
		os.Exit(1)
	}

	var jobs []map[string]any
	json.Unmarshal(body, &jobs)

	if len(jobs) == 0 {
		fmt.Println("No scheduled tasks.")
		return
	}

	fmt.Printf("Scheduled tasks (%d):\n\n", len(jobs))
	for _, j := range jobs {
		enabled := "✅"
		if e, ok := j["enabled"].(bool); ok && !e {
			enabled = "⏸"
		}
		id, _ := j["id"].(string)
		expr, _ := j["cron_expr"].(string)
		task, _ := j["task"].(string)
		desc, _ := j["description"].(string)
		display := desc
		if display == "" {
			display = task
			if len(display) > 60 {
				display = display[:60] + "..."
			}
		}
		fmt.Printf("  %s %s  %s  %s\n", enabled, id, expr, display)
	}
}

func runCronDel(args []string) {
	var dataDir string
	var id string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--data-dir":
			if i+1 < len(args) {
				i++
				dataDir = args[i]
			}
		default:
			id = args[i]
		}
	}

	if id == "" {
		fmt.Fprintln(os.Stderr, "Error: job ID is required")
		os.Exit(1)
	}

	sockPath := resolveSocketPath(dataDir)
	if _, err := os.Stat(sockPath); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error: phone-pilot is not running (socket not found: %s)\n", sockPath)
		os.Exit(1)
	}

	payload, _ := json.Marshal(map[string]string{"id": id})
	mustPost(sockPath, "/cron/del", payload)
	fmt.Printf("Cron job %s deleted.\n", id)
}

func printCronUsage() {
	fmt.Println(`Usage: phone-pilot cron <command> [options]

Commands:
  add       Create a new scheduled task
  list      List all scheduled tasks
  del <id>  Delete a scheduled task

Run 'phone-pilot cron <command> --help' for details.`)
}

func printCronAddUsage() {
	fmt.Println(`Usage: phone-pilot cron add [options] [<min> <hour> <day> <month> <weekday> <task>]

Create a new scheduled task.

Options:
  -d, --device <name>      Target device (optional if only one device)
  -c, --cron <expr>        Cron expression, e.g. "0 8 * * *"
      --task <text>        Task to run
      --desc <text>        Short description
      --data-dir <path>    Data directory (default: ~/.phone-pilot)
  -h, --help               Show this help

Examples:
  phone-pilot cron add --cron "0 8 * * *" --task "Open the weather app and read today's forecast" --desc "Morning weather"
  phone-pilot cron add 0 8 * * * Open the weather app and read today's forecast`)
}
