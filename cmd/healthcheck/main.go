// Package main is a tiny liveness probe for distroless container images,
// which ship without curl or wget.
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"
)

func main() {
	port := os.Getenv("UTCA_PORT")
	if port == "" {
		port = "10000"
	}
	path := "/healthz"
	if len(os.Args) > 1 && os.Args[1] == "ready" {
		path = "/readyz"
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://localhost:%s%s", port, path))
	if err != nil {
		os.Exit(1)
	}
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}
