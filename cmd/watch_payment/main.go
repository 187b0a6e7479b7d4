package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gymdesk/internal/models"
	"gymdesk/internal/services"
)

// watch_payment follows one payment session from the terminal: it prints the
// countdown every second and polls the status endpoint until the session
// resolves. Useful at the front desk and for poking at a running server.

type statusPayload struct {
	State              models.SessionState    `json:"state"`
	Terminal           bool                   `json:"terminal"`
	ExpiresAt          time.Time              `json:"expiresAt"`
	RemainingSeconds   int                    `json:"remainingSeconds"`
	RemainingFormatted string                 `json:"remainingFormatted"`
	Order              *models.SessionDetails `json:"order"`
}

type apiEnvelope struct {
	Status  string        `json:"status"`
	Message string        `json:"message"`
	Data    statusPayload `json:"data"`
}

func main() {
	baseURL := flag.String("base", "http://localhost:8080", "Server base URL")
	orderID := flag.String("order", "", "Order id to watch (mandatory)")
	flag.Parse()

	if *orderID == "" {
		fmt.Println("Usage: watch_payment -order <order_id> [-base <url>]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	client := &http.Client{Timeout: 10 * time.Second}

	details, err := fetchStatus(context.Background(), client, *baseURL, "details", *orderID)
	if err != nil {
		log.Fatalf("Failed to fetch payment details: %v", err)
	}
	if details.Order != nil {
		fmt.Printf("Order %s: INR %d, expires %s\n", details.Order.OrderID, details.Order.Amount, details.ExpiresAt.Format(time.Kitchen))
		if details.Order.UpiIntent != "" {
			fmt.Printf("UPI link: %s\n", details.Order.UpiIntent)
		}
	}
	if details.Terminal {
		fmt.Printf("Session already resolved: %s\n", details.State)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		cancel()
	}()

	status := func(ctx context.Context) (models.SessionState, error) {
		payload, err := fetchStatus(ctx, client, *baseURL, "status", *orderID)
		if err != nil {
			return "", err
		}
		return payload.State, nil
	}

	watcher := services.NewSessionWatcher(*orderID, details.State, details.ExpiresAt, status, services.DefaultWatcherConfig())
	watcher.OnTransition(func(state models.SessionState) {
		fmt.Printf("\n-> %s\n", state)
	})
	watcher.Start(ctx)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			state, remaining, _ := watcher.Snapshot()
			if !state.Terminal() {
				fmt.Printf("\r%s  [%s]", services.FormatRemaining(remaining), state)
			}
		case <-watcher.Done():
			state, _, _ := watcher.Snapshot()
			fmt.Printf("\nFinal state: %s\n", state)
			if state != models.SessionPaid {
				os.Exit(1)
			}
			return
		case <-ctx.Done():
			fmt.Println("\nStopped.")
			return
		}
	}
}

func fetchStatus(ctx context.Context, client *http.Client, baseURL, kind, orderID string) (*statusPayload, error) {
	url := fmt.Sprintf("%s/api/payments/%s/%s", baseURL, kind, orderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned %d for %s", resp.StatusCode, url)
	}

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, err
	}
	return &envelope.Data, nil
}
