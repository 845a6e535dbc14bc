// Package ingest pulls out-of-band notifications from transports other than
// the HTTP webhook endpoint and hands them to the wait coordinator.
package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/opcoord/opcoord/internal/wait"
)

// signatureAttribute is the SQS message attribute carrying the HMAC signature
// of the message body.
const signatureAttribute = "signature"

// SQSSource consumes inbound notifications from an SQS queue and delivers
// them through the coordinator's verification and matching path, same as the
// webhook endpoint.
type SQSSource struct {
	client      *sqs.Client
	queueURL    string
	coordinator *wait.Coordinator
	logger      *slog.Logger

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewSQSSource creates a source reading from queueURL.
func NewSQSSource(client *sqs.Client, queueURL string, coordinator *wait.Coordinator, logger *slog.Logger) *SQSSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQSSource{
		client:      client,
		queueURL:    queueURL,
		coordinator: coordinator,
		logger:      logger,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Start begins the consume loop.
func (s *SQSSource) Start() {
	go s.run()
}

// Stop signals the loop to exit and waits for it.
func (s *SQSSource) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	<-s.done
}

func (s *SQSSource) run() {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		s.poll(ctx)
		cancel()
	}
}

func (s *SQSSource) poll(ctx context.Context) {
	resp, err := s.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:              aws.String(s.queueURL),
		MaxNumberOfMessages:   10,
		WaitTimeSeconds:       20, // long poll
		MessageAttributeNames: []string{signatureAttribute},
	})
	if err != nil {
		s.logger.Error("SQS ReceiveMessage failed", "error", err)
		select {
		case <-s.stop:
		case <-time.After(time.Second):
		}
		return
	}

	for _, msg := range resp.Messages {
		var signature string
		if attr, ok := msg.MessageAttributes[signatureAttribute]; ok && attr.StringValue != nil {
			signature = *attr.StringValue
		}

		status, deliverErr := s.coordinator.DeliverEvent([]byte(aws.ToString(msg.Body)), signature)
		if deliverErr != nil {
			s.logger.Warn("malformed inbound notification", "status", status, "error", deliverErr)
		} else if status == wait.DeliveryRejectedSignature {
			s.logger.Warn("inbound notification rejected at verification")
		}

		// Delete regardless of disposition: there is no replay of discarded
		// events, and leaving the message would just redeliver it.
		_, err := s.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      aws.String(s.queueURL),
			ReceiptHandle: msg.ReceiptHandle,
		})
		if err != nil {
			s.logger.Error("SQS DeleteMessage failed", "error", err)
		}
	}
}
