package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"alertdesk/internal/app"
	"alertdesk/internal/clock"
	"alertdesk/internal/config"

	"golang.org/x/crypto/bcrypt"
)

// main starts alertdesk using file or directory config source.
// Params: CLI flags (--config-file or --config-dir, or --hash-password).
// Returns: process exit code by startup/run result.
func main() {
	var (
		configFile   = flag.String("config-file", "", "path to one TOML config file")
		configDir    = flag.String("config-dir", "", "path to directory with TOML config fragments")
		hashPassword = flag.Bool("hash-password", false, "read a password from stdin and print its bcrypt hash for gate.admin")
	)
	flag.Parse()

	if *hashPassword {
		if err := printPasswordHash(); err != nil {
			_, _ = fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		return
	}

	source, err := config.FromCLI(*configFile, *configDir)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	service, err := app.NewService(source, clock.RealClock{})
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "service init failed:", err.Error())
		os.Exit(1)
	}

	if err := service.Run(context.Background()); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "service run failed:", err.Error())
		os.Exit(1)
	}
}

func printPasswordHash() error {
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return fmt.Errorf("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	fmt.Println(string(hash))
	return nil
}
