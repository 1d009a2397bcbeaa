package main

import (
	"fmt"
	"os"
	"strings"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		}
	}

	// Bare invocation (or flags only) runs goal pursuit.
	if len(os.Args) < 2 || strings.HasPrefix(os.Args[1], "-") {
		if err := runGoal(os.Args[1:]); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
		return
	}

	switch os.Args[1] {
	case "run":
		if err := runGoal(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "run: %v\n", err)
			os.Exit(1)
		}
	case "transcript":
		if err := runTranscript(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "transcript: %v\n", err)
			os.Exit(1)
		}
	case "purge":
		if err := runPurge(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "purge: %v\n", err)
			os.Exit(1)
		}
	case "encrypt-key":
		if err := runEncryptKey(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "encrypt-key: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'maestro --help' for usage information.\n", os.Args[1])
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`maestro - Multi-agent conversation router

USAGE:
    maestro [COMMAND] [FLAGS]

COMMANDS:
    run          Pursue a goal with the configured agent roster
    transcript   Render a stored session as markdown
    purge        Delete messages older than the retention window
    encrypt-key  Encrypt a secret for use in the config file

    (no command) - Same as 'run'

FLAGS:
    -h, --help         Show this help message
    --config PATH      Config file path (default: ./config.yaml)

CONFIGURATION:
    Config file: ./config.yaml
    Environment: MAESTRO_* variables override config
    Secrets:     values prefixed 'enc:' are decrypted with MAESTRO_CONFIG_KEY

EXAMPLES:
    maestro run --goal "Plan a weekend trip to Lisbon"
    maestro transcript --session 01J9W3...
    maestro purge --older-than 720h
    maestro encrypt-key`)
}
