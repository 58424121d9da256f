// README: Parses one booking transcript through the configured LLM provider and prints the fields.
package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"keralaride/internal/ai"
	"keralaride/internal/config"
)

func main() {
	transcript := flag.String("text", "Book a cab from Kochi to Munnar tomorrow at 9 am, my number is 9876543210", "transcript to parse")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	parser, closeParser, err := ai.NewParser(ctx, cfg.AI)
	if err != nil {
		logrus.Fatalf("Failed to initialize AI provider: %v", err)
	}
	defer closeParser()

	currentContext := map[string]string{
		"current_time": time.Now().In(cfg.Booking.Location()).Format("2006-01-02 15:04 (Monday)"),
	}

	fmt.Printf("Rider: %s\n", *transcript)
	cmd, err := parser.ParseBookingCommand(ctx, *transcript, currentContext)
	if err != nil {
		logrus.Fatalf("Error parsing command: %v", err)
	}

	fmt.Printf("Reply: %s\n", cmd.Reply)
	fmt.Printf("Intent: %s\n", cmd.Intent)
	for _, f := range []struct {
		label string
		value *string
	}{
		{"Origin", cmd.Origin},
		{"Destination", cmd.Destination},
		{"Date", cmd.Date},
		{"Time", cmd.Time},
		{"Phone", cmd.Phone},
	} {
		if f.value != nil {
			fmt.Printf("%s: %s\n", f.label, *f.value)
		}
	}
}
