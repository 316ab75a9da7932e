package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/service"
)

// issue-token mints a development bearer token. Production tokens come from
// the identity service.
func main() {
	var (
		role         string
		subject      string
		jobs         string
		ttl          time.Duration
		promptSecret bool
	)
	flag.StringVar(&role, "role", "candidate", "Token role: candidate, recruiter or service")
	flag.StringVar(&subject, "subject", "", "Token subject (the candidate ID for candidate tokens)")
	flag.StringVar(&jobs, "jobs", "", "Comma separated job IDs a recruiter is limited to")
	flag.DurationVar(&ttl, "ttl", 2*time.Hour, "Token lifetime")
	flag.BoolVar(&promptSecret, "prompt-secret", false, "Read the signing secret from the terminal instead of JWT_SECRET")
	flag.Parse()

	// ─── Load Configuration ────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// ─── CLI Input ─────────────────────────────────────────────────────
	if subject == "" {
		fmt.Fprint(os.Stderr, "Enter Subject: ")
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		subject = strings.TrimSpace(line)
	}

	secret := cfg.JWTSecret
	if promptSecret {
		if !term.IsTerminal(int(syscall.Stdin)) {
			fmt.Fprintln(os.Stderr, "Error: -prompt-secret needs a terminal")
			os.Exit(1)
		}
		fmt.Fprint(os.Stderr, "Enter Signing Secret: ")
		b, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error reading secret")
			os.Exit(1)
		}
		secret = string(b)
	}
	if secret == "" {
		fmt.Fprintln(os.Stderr, "Error: signing secret is empty")
		os.Exit(1)
	}

	var jobIDs []string
	for _, j := range strings.Split(jobs, ",") {
		if j = strings.TrimSpace(j); j != "" {
			jobIDs = append(jobIDs, j)
		}
	}

	token, err := service.NewAuthService(secret).IssueToken(service.Role(role), subject, jobIDs, ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
