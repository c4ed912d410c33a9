package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"sunsetdb/pkg/client"
)

const Prompt = "sunset> "

func main() {
	serverAddr := flag.String("addr", "127.0.0.1:2600", "Sunset TCP Server Address")
	flag.Parse()

	fmt.Printf("Sunset CLI (Target: %s)\n", *serverAddr)
	fmt.Println("Connecting...")

	cli, err := client.Dial(*serverAddr)
	if err != nil {
		fmt.Printf("Connection failed: %v\n", err)
		fmt.Println("Tip: Ensure the server is running (e.g. go run ./cmd/server -create).")
		return
	}
	defer cli.Close()
	fmt.Println("Connected! Type 'help' for commands.")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for {
		fmt.Print(Prompt)
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		// values keep their inner spacing
		parts := strings.SplitN(line, " ", 3)
		cmd := strings.ToLower(parts[0])

		switch cmd {
		case "put", "set":
			handlePut(cli, parts)
		case "get":
			handleGet(cli, parts)
		case "del", "rm":
			handleDel(cli, parts)
		case "help":
			printHelp()
		case "exit", "quit":
			fmt.Println("Bye!")
			return
		default:
			fmt.Printf("Unknown command: '%s'. Type 'help'.\n", cmd)
		}
	}
}

func handlePut(cli *client.Client, parts []string) {
	if len(parts) < 3 {
		fmt.Println("Usage: put <key> <value>")
		return
	}

	start := time.Now()
	err := cli.Put([]byte(parts[1]), []byte(parts[2]))
	duration := time.Since(start)

	if err != nil {
		fmt.Printf("Error: %v\n", err)
	} else {
		fmt.Printf("OK (%v)\n", duration)
	}
}

func handleGet(cli *client.Client, parts []string) {
	if len(parts) != 2 {
		fmt.Println("Usage: get <key>")
		return
	}

	start := time.Now()
	val, err := cli.Get([]byte(parts[1]))
	duration := time.Since(start)

	switch {
	case errors.Is(err, client.ErrNotFound):
		fmt.Printf("(not found) (%v)\n", duration)
	case err != nil:
		fmt.Printf("Error: %v\n", err)
	default:
		fmt.Printf("\"%s\" (%v)\n", string(val), duration)
	}
}

func handleDel(cli *client.Client, parts []string) {
	if len(parts) != 2 {
		fmt.Println("Usage: del <key>")
		return
	}

	start := time.Now()
	err := cli.Delete([]byte(parts[1]))
	duration := time.Since(start)

	if err != nil {
		fmt.Printf("Error: %v\n", err)
	} else {
		fmt.Printf("Deleted (%v)\n", duration)
	}
}

func printHelp() {
	fmt.Println(`
Commands:
  put <key> <value>      Insert/Update record (value may contain spaces)
  get <key>              Retrieve record
  del <key>              Delete record
  exit                   Exit CLI
	`)
}
