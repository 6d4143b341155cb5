// Command keyprint prints the log fingerprint of each credential read from
// stdin, one per line, so operators can match cooldown log lines to keys.
package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/phrazzld/agentkit/internal/upstream"
)

func main() {
	scanner := bufio.NewScanner(os.Stdin)
	line := 0
	for scanner.Scan() {
		line++
		cred := strings.TrimSpace(scanner.Text())
		if cred == "" {
			continue
		}
		fmt.Printf("%d\t%s\n", line, upstream.Fingerprint(cred))
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("keyprint: %v", err)
	}
}
