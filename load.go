package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"canteen/server/internal/models"
	"canteen/server/internal/services"
)

type loadStats struct {
	total   atomic.Int64
	created atomic.Int64
	failed  atomic.Int64
}

func (s *loadStats) fields(elapsed time.Duration) log.Fields {
	total := s.total.Load()
	return log.Fields{
		"elapsed":    elapsed.Round(time.Second).String(),
		"requests":   total,
		"created":    s.created.Load(),
		"failed":     s.failed.Load(),
		"rps":        float64(total) / elapsed.Seconds(),
		"goroutines": runtime.NumGoroutine(),
	}
}

// runLoad submits orders from many workers until the duration passes, then
// reports throughput. It needs a running server.
func runLoad(c *cli.Context) error {
	setupLogging("info")

	target := strings.TrimRight(c.String("url"), "/") + "/api/v1/orders"
	workers := c.Int("workers")
	if workers <= 0 {
		return errors.Errorf("workers must be positive, got %d", workers)
	}

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("duration"))
	defer cancel()

	client := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        workers * 2,
			MaxIdleConnsPerHost: workers * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	payload, err := json.Marshal(services.SubmitRequest{
		Items:         []models.CartLine{{Name: "Teh", UnitPrice: 3000, Quantity: 1}},
		CustomerName:  "load",
		PaymentMethod: "cash",
	})
	if err != nil {
		return err
	}

	var stats loadStats
	start := time.Now()
	log.WithFields(log.Fields{"url": target, "workers": workers}).Info("load test started")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t := time.NewTicker(5 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-t.C:
				log.WithFields(stats.fields(time.Since(start))).Info("load progress")
			}
		}
	})
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for gctx.Err() == nil {
				stats.total.Add(1)
				if post(gctx, client, target, payload) {
					stats.created.Add(1)
				} else {
					stats.failed.Add(1)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	log.WithFields(stats.fields(time.Since(start))).Info("load test finished")
	return nil
}

func post(ctx context.Context, client *http.Client, url string, body []byte) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusCreated
}
