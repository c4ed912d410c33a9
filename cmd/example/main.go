package main

import (
	"errors"
	"fmt"
	"log"
	"time"

	"sunsetdb/pkg/client"
)

func main() {
	fmt.Println("Connecting to Sunset...")
	cli, err := client.Dial("127.0.0.1:2600")
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer cli.Close()

	key := []byte("greeting")
	value := "Hello, Sunset SDK!"

	fmt.Printf("Writing: Key=%s, Val=%s\n", key, value)
	start := time.Now()
	if err := cli.Put(key, []byte(value)); err != nil {
		log.Fatalf("Put failed: %v", err)
	}
	fmt.Printf("Put done in %v\n", time.Since(start))

	fmt.Printf("Reading Key=%s...\n", key)
	start = time.Now()
	val, err := cli.Get(key)
	if err != nil {
		log.Fatalf("Get failed: %v", err)
	}
	fmt.Printf("Got Value: %s (in %v)\n", string(val), time.Since(start))

	if err := cli.Delete(key); err != nil {
		log.Fatalf("Delete failed: %v", err)
	}
	if _, err := cli.Get(key); !errors.Is(err, client.ErrNotFound) {
		log.Fatalf("expected key to be gone, got %v", err)
	}
	fmt.Println("Deleted.")
}
