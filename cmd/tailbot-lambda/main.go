// Lambda entrypoint for running the bot on an EventBridge schedule
// instead of the built-in scheduler.
package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"tailbot/internal/app"
	"tailbot/pkg/logx"
)

type Handler func(ctx context.Context, event events.CloudWatchEvent) error

// Adapter builds the bot fresh per invocation. Scheduled runs arrive
// minutes apart, and a cold build always starts from clean state.
func Adapter(cfgPath string) Handler {
	// The app carries its own log service; this one covers failures
	// before it exists.
	bootLog := logx.NewConsole("info").With(logx.String("comp", "lambda"))
	return func(ctx context.Context, _ events.CloudWatchEvent) error {
		a, err := app.New(cfgPath)
		if err != nil {
			bootLog.Error("bot init failed", logx.Err(err))
			return err
		}
		return a.RunOnce(ctx)
	}
}

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "./config.json"
	}
	lambda.Start(Adapter(cfgPath))
}
