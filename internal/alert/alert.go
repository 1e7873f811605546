// Package alert emails the operator when the sync keeps failing.
//
// The bot runs unattended, usually on a timer nobody watches. When the
// source site changes its markup every sync fails quietly until someone
// notices the feed went stale. The notifier counts consecutive sync
// failures and sends a single SES email per failure streak once the
// threshold is crossed; a successful sync arms it again.
package alert

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ses"

	"tailbot/internal/scrape"
	"tailbot/pkg/logx"
)

const sendTimeout = 15 * time.Second

type Config struct {
	Enabled bool
	// FailureThreshold is how many consecutive failures trigger the
	// email. Defaults to 3.
	FailureThreshold int
	// TailNumber appears in the subject and body so an operator running
	// several bots can tell them apart.
	TailNumber string
	Region     string
	From       string
	To         []string
}

type mailerAPI interface {
	SendEmailWithContext(ctx aws.Context, input *ses.SendEmailInput, opts ...request.Option) (*ses.SendEmailOutput, error)
}

// Notifier tracks the failure streak and owns the SES client.
//
// It is safe for concurrent use, though the bot calls it from a single
// sync job at a time.
type Notifier struct {
	mu sync.Mutex

	log    logx.Logger
	cfg    Config
	client mailerAPI

	failures int
	// alerted keeps it to one email per streak.
	alerted bool
}

func New(cfg Config, log logx.Logger) (*Notifier, error) {
	n := &Notifier{log: log}
	if err := n.Apply(cfg); err != nil {
		return nil, err
	}
	return n, nil
}

// Apply updates the threshold and recipients live. The SES client is
// rebuilt when the region changes.
func (n *Notifier) Apply(cfg Config) error {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	rebuild := cfg.Enabled && (n.client == nil || cfg.Region != n.cfg.Region)
	n.cfg = cfg
	if !cfg.Enabled {
		n.client = nil
		return nil
	}
	if rebuild {
		awsCfg := aws.NewConfig()
		if r := strings.TrimSpace(cfg.Region); r != "" {
			awsCfg = awsCfg.WithRegion(r)
		}
		sess, err := session.NewSession(awsCfg)
		if err != nil {
			return fmt.Errorf("alert: ses session: %w", err)
		}
		n.client = ses.New(sess)
	}
	return nil
}

// SyncFailed records one failed sync and emails the operator when the
// streak crosses the threshold. Send errors are logged, never returned;
// alerting must not make a bad day worse.
func (n *Notifier) SyncFailed(ctx context.Context, syncErr error) {
	n.mu.Lock()
	n.failures++
	failures := n.failures
	cfg := n.cfg
	client := n.client
	fire := cfg.Enabled && client != nil && !n.alerted && failures >= cfg.FailureThreshold
	if fire {
		n.alerted = true
	}
	n.mu.Unlock()

	if !fire {
		return
	}

	subject := fmt.Sprintf("tailbot %s: flight sync failing", cfg.TailNumber)
	body := buildBody(cfg.TailNumber, failures, syncErr)

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	_, err := client.SendEmailWithContext(sendCtx, &ses.SendEmailInput{
		Destination: &ses.Destination{
			ToAddresses: aws.StringSlice(cfg.To),
		},
		Message: &ses.Message{
			Body: &ses.Body{
				Text: &ses.Content{
					Charset: aws.String("UTF-8"),
					Data:    aws.String(body),
				},
			},
			Subject: &ses.Content{
				Charset: aws.String("UTF-8"),
				Data:    aws.String(subject),
			},
		},
		Source: aws.String(cfg.From),
	})
	if err != nil {
		// keep the streak armed so the next failure retries the email
		n.mu.Lock()
		n.alerted = false
		n.mu.Unlock()
		n.log.Warn("alert email failed", logx.Int("failures", failures), logx.Err(err))
		return
	}
	n.log.Info("alert email sent", logx.Int("failures", failures), logx.String("to", strings.Join(cfg.To, ",")))
}

// SyncSucceeded resets the failure streak.
func (n *Notifier) SyncSucceeded() {
	n.mu.Lock()
	n.failures = 0
	n.alerted = false
	n.mu.Unlock()
}

// Failures reports the current streak length.
func (n *Notifier) Failures() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.failures
}

func buildBody(tail string, failures int, err error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The flight history sync for %s has failed %d times in a row.\n\n", tail, failures)
	fmt.Fprintf(&b, "Last error:\n%v\n", err)
	if errors.Is(err, scrape.ErrLayoutChanged) || errors.Is(err, scrape.ErrNoFlights) {
		b.WriteString("\nThe history page no longer matches the scraper's selectors. The site markup probably changed and the scraper needs an update.\n")
	}
	return b.String()
}
