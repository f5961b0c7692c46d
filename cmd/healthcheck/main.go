// Command healthcheck probes the service's health endpoint for container
// healthchecks. It exits non-zero unless the endpoint answers 200.
//
// The URL is HEALTHCHECK_URL, or /healthz on the port of HTTP_ADDR. With
// --ready it probes /readyz instead, which also requires a recent cycle.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

func main() {
	ready := pflag.Bool("ready", false, "probe /readyz instead of /healthz")
	pflag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := probe(ctx, &http.Client{Timeout: 3 * time.Second}, targetURL(*ready)); err != nil {
		log.Print(err)
		os.Exit(1)
	}
}

func targetURL(ready bool) string {
	if u := os.Getenv("HEALTHCHECK_URL"); u != "" {
		return u
	}
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	path := "/healthz"
	if ready {
		path = "/readyz"
	}
	return "http://" + addr + path
}

func probe(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("failed to close response body: %v", err)
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: status %d", url, resp.StatusCode)
	}
	return nil
}
