// Command rabbitctl publishes, fetches and consumes messages with the
// blocking AMQP client.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "rabbitctl:", err)
		os.Exit(1)
	}
}
