// Command checkout places an order from the user's cart, writes the payment
// QR to a PNG file and waits until the payment succeeds, times out or is
// interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/hawker-checkout/internal/apiclient"
	"github.com/xenking/hawker-checkout/internal/domain/payment"
	"github.com/xenking/hawker-checkout/internal/poller"
)

type options struct {
	client  apiclient.Config
	orderID string
	qrPath  string
	window  time.Duration
	every   time.Duration
}

func main() {
	var opts options
	flag.StringVar(&opts.client.BaseURL, "base-url", "http://localhost:8080", "checkout API base URL")
	flag.StringVar(&opts.client.APIKey, "api-key", os.Getenv("HAWKER_API_KEY"), "API key (or HAWKER_API_KEY env)")
	flag.StringVar(&opts.client.UserID, "user", "", "user id to check out as")
	flag.StringVar(&opts.orderID, "order", "", "pay an existing order instead of checking out the cart")
	flag.StringVar(&opts.qrPath, "qr", "payment-qr.png", "where to write the QR image")
	flag.DurationVar(&opts.window, "window", 5*time.Minute, "payment window")
	flag.DurationVar(&opts.every, "poll-every", 5*time.Second, "status poll interval")
	flag.Parse()

	lg, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if opts.client.UserID == "" || opts.client.APIKey == "" {
		lg.Fatal("Both --user and --api-key are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	status, err := run(ctx, lg, opts)
	if err != nil {
		lg.Fatal("Checkout failed", zap.Error(err))
	}
	if status != poller.StatusSuccess {
		os.Exit(1)
	}
}

func run(ctx context.Context, lg *zap.Logger, opts options) (poller.Status, error) {
	client := apiclient.New(opts.client, nil)

	orderID := opts.orderID
	if orderID == "" {
		o, err := client.CreateOrder(ctx)
		if err != nil {
			return poller.StatusIdle, errors.Wrap(err, "create order")
		}
		fmt.Printf("Order %s created, collect with code %s, total $%d.%02d\n",
			o.ID, o.Code, o.TotalCents/100, o.TotalCents%100)
		orderID = o.ID
	}

	done := make(chan struct{})
	ctrl := poller.New(client.Gateway(orderID), poller.Callbacks{
		OnQR: func(p *payment.Payload) {
			img, err := p.QRImage()
			if err != nil {
				lg.Warn("Decode QR", zap.Error(err))
				return
			}
			if err := os.WriteFile(opts.qrPath, img, 0o600); err != nil {
				lg.Warn("Write QR", zap.Error(err))
				return
			}
			fmt.Printf("Scan %s to pay within %s\n", opts.qrPath, opts.window)
		},
		OnSuccess: func() {
			fmt.Println("Payment received")
			close(done)
		},
		OnFailure: func(reason poller.Reason) {
			fmt.Printf("Payment failed: %s\n", reason)
			close(done)
		},
	}, poller.Config{Window: opts.window, PollEvery: opts.every, Logger: lg})

	if err := ctrl.Open(ctx); err != nil {
		return ctrl.Close(), err
	}

	select {
	case <-done:
	case <-ctx.Done():
		if !ctrl.Cancel() {
			<-done
		}
	}
	return ctrl.Close(), nil
}
