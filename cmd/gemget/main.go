// Command gemget fetches a single Gemini URL, trusting certificates on
// first use and persisting that trust in a SQLite-backed tofu.Store.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	gemini "git.sr.ht/~wayfarer/gemini"
	"git.sr.ht/~wayfarer/gemini/tofu"
)

func main() {
	knownHosts := flag.String("known-hosts", defaultKnownHostsPath(), "path to the trust-on-first-use database")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: gemget [-known-hosts path] <url>")
		os.Exit(2)
	}

	store, err := tofu.Open(*knownHosts)
	if err != nil {
		log.Fatalf("gemget: %v", err)
	}
	defer store.Close()

	client := &gemini.Client{
		TOFU:          store,
		AllowFirstUse: true,
	}

	resp, err := client.Get(context.Background(), flag.Arg(0))
	if err != nil {
		if changed, ok := err.(*tofu.CertificateChangedError); ok {
			log.Fatalf("gemget: %v", changed)
		}
		log.Fatalf("gemget: %v", err)
	}
	defer resp.Body.Close()

	if !resp.Status.IsSuccess() {
		log.Fatalf("gemget: %d %s", resp.Status, resp.Meta)
	}

	io.Copy(os.Stdout, resp.Body)
}

func defaultKnownHostsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "known_hosts.db"
	}
	return filepath.Join(dir, "gemget", "known_hosts.db")
}
