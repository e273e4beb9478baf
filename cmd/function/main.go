// Function is the serverless entry point: one API Gateway proxy event per invocation.
package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"visitor-relay/internal/app"
	"visitor-relay/internal/config"
	"visitor-relay/internal/function"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// The function runs without a shutdown hook, so no Kafka mirror; visit log records
	// are flushed by the per-invocation drain.
	a, err := app.New(context.Background(), cfg, app.Settings{
		UserAgent: function.UserAgent,
		LogOutput: os.Stderr,
	})
	if err != nil {
		log.Fatalf("app: %v", err)
	}

	fn := function.New(a.Core(function.Options()), a.Forwarder, a.Logger)
	lambda.Start(fn.Handle)
}
