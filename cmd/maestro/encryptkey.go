package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"maestro-ai/internal/infra/config"
)

// runEncryptKey reads a secret from stdin (so it never lands in shell
// history) and prints the "enc:" value to paste into the config file. The
// passphrase comes from MAESTRO_CONFIG_KEY, the same variable the loader
// uses to decrypt.
func runEncryptKey(args []string) error {
	fs := flag.NewFlagSet("encrypt-key", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	passphrase := os.Getenv("MAESTRO_CONFIG_KEY")
	if passphrase == "" {
		return fmt.Errorf("MAESTRO_CONFIG_KEY is not set")
	}

	fmt.Fprint(os.Stderr, "Secret to encrypt: ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("read secret: %w", err)
	}
	secret := strings.TrimSpace(line)
	if secret == "" {
		return fmt.Errorf("empty secret")
	}

	encrypted, err := config.EncryptValue(secret, passphrase)
	if err != nil {
		return err
	}

	fmt.Printf("enc:%s\n", encrypted)
	return nil
}
