// Package broker receives tour jobs from an SQS queue and publishes their
// results to SNS topics.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/aws/aws-sdk-go/service/sns"
	"github.com/aws/aws-sdk-go/service/sns/snsiface"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const (
	// maxNumberOfMessages is the number of messages that we want to receive
	// from SQS incoming batches. Jobs are handled one at a time.
	maxNumberOfMessages = 1

	// waitTimeSeconds is the longest we're waiting on each SQS receive poll.
	waitTimeSeconds = 20
)

// Handler runs a job. The returned result is published even when the error
// is not nil.
type Handler func(ctx context.Context, job *Job) (*Result, error)

// Broker is a job queue client using the SQS and SNS services.
//
// Messages are received from queueURL and sent to an internal channel. The
// channel is unbuffered and a single processor consumes it, so the next
// message is not received until the current job is done.
//
// The processor will:
//
// * Decode the job, publishing undecodable messages to the error topic.
//
// * Skip jobs that have been handled before, when a repository table is
// configured. Jobs are recorded once the handler returns, unless the broker
// was stopped meanwhile.
//
// * Run the handler and publish its result to the result topic, or to the
// error topic when it failed.
//
// Messages are deleted from SQS as soon as they're processed, including
// failures. The visibility timeout of the queue must exceed the time taken
// by the longest tour.
type Broker struct {
	logger         logrus.FieldLogger
	sqsClient      sqsiface.SQSAPI
	queueURL       string
	snsClient      snsiface.SNSAPI
	resultTopicARN string
	errorTopicARN  string
	ctx            context.Context
	cancel         context.CancelFunc
	messages       chan *sqs.Message
	done           chan struct{}
	stop           chan chan struct{}
	incoming       prometheus.Counter
	handler        Handler
	mu             sync.RWMutex
	repository
}

// New returns a usable Broker.
func New(
	logger logrus.FieldLogger,
	sqsClient sqsiface.SQSAPI, queueURL string,
	snsClient snsiface.SNSAPI, resultTopicARN, errorTopicARN string,
	dynamodbClient dynamodbiface.DynamoDBAPI, dynamodbTable string,
	incoming prometheus.Counter) *Broker {
	b := &Broker{
		logger:         logger,
		sqsClient:      sqsClient,
		queueURL:       queueURL,
		snsClient:      snsClient,
		resultTopicARN: resultTopicARN,
		errorTopicARN:  errorTopicARN,
		messages:       make(chan *sqs.Message),
		done:           make(chan struct{}),
		stop:           make(chan chan struct{}),
		incoming:       incoming,
		repository:     repository{client: dynamodbClient, table: dynamodbTable},
	}
	b.ctx, b.cancel = context.WithCancel(context.Background())
	return b
}

// Subscribe sets the handler run for every job.
func (b *Broker) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = h
}

// Run starts the processing and blocks until Stop is called.
func (b *Broker) Run() {
	go b.processor()
	b.loop()
}

func (b *Broker) processor() {
	defer close(b.done)
	for m := range b.messages {
		b.handle(m)
	}
}

// loop sends messages received from queueURL to the internal messages
// channel.
func (b *Broker) loop() {
	for {
		select {
		case ch := <-b.stop:
			close(b.messages)
			<-b.done
			close(ch)
			return
		default:
			out, err := b.sqsClient.ReceiveMessageWithContext(b.ctx, &sqs.ReceiveMessageInput{
				QueueUrl:            aws.String(b.queueURL),
				MaxNumberOfMessages: aws.Int64(maxNumberOfMessages),
				WaitTimeSeconds:     aws.Int64(waitTimeSeconds),
			})
			if b.ctx.Err() != nil {
				continue
			}
			if err != nil {
				b.logger.Errorf("Error receiving a message from SQS: %s", err)
				time.Sleep(1 * time.Second)
				continue
			}
			for _, m := range out.Messages {
				b.messages <- m
			}
		}
	}
}

// handle processes a single message. The message is deleted unless the
// broker is stopped while the job runs, so it is received again later.
func (b *Broker) handle(m *sqs.Message) {
	if b.incoming != nil {
		b.incoming.Inc()
	}

	job, err := b.openMessage(m)
	if err != nil {
		b.deleteMessage(m.ReceiptHandle)
		return
	}
	logger := b.logger.WithFields(logrus.Fields{"job": job.ID, "source": job.Source})

	res, err := b.run(job)
	if b.ctx.Err() != nil {
		logger.Warn("Job interrupted, leaving it in the queue")
		return
	}
	defer b.deleteMessage(m.ReceiptHandle)
	if err := b.store(b.ctx, job); err != nil {
		logger.WithError(err).Warn("Job could not be recorded in the repository")
	}
	if res == nil {
		res = &Result{}
	}
	res.ID, res.Source = job.ID, job.Source
	if err != nil {
		logger.WithError(err).Error("Job failed")
		res.Status, res.Error = StatusFailed, err.Error()
		b.publishResult(b.errorTopicARN, "error", res)
		return
	}
	res.Status = StatusDone
	logger.Info("Job done")
	b.publishResult(b.resultTopicARN, "result", res)
}

// openMessage decodes the job and rejects the ones seen before.
func (b *Broker) openMessage(m *sqs.Message) (*Job, error) {
	body := aws.StringValue(m.Body)
	job, err := ParseJob([]byte(body))
	if err != nil {
		b.logger.WithError(err).Warn("Received an invalid job")
		b.invalidMessage(body, err)
		return nil, err
	}

	seen, err := b.seenBefore(b.ctx, job)
	if err != nil {
		// Not having access to the repository is not a reason to drop the
		// job.
		b.logger.WithError(err).Warn("Job repository check failed")
	}
	if seen {
		b.logger.WithField("job", job.ID).Warn("Job found in the repository, skipping")
		return nil, errors.New("job seen")
	}
	return job, nil
}

// run calls the handler in panic recovery mode.
func (b *Broker) run(job *Job) (res *Result, err error) {
	b.mu.RLock()
	h := b.handler
	b.mu.RUnlock()
	if h == nil {
		return nil, errors.New("no job handler registered")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic! %s %s", r, debug.Stack())
		}
	}()
	return h(b.ctx, job)
}

// deleteMessage does best effort to delete a message from SQS.
func (b *Broker) deleteMessage(receiptHandle *string) {
	_, err := b.sqsClient.DeleteMessageWithContext(b.ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(b.queueURL),
		ReceiptHandle: receiptHandle,
	})
	if err != nil {
		b.logger.Error("Message could not be removed from SQS: ", err)
	}
}

// publishMessage puts a message into a SNS topic.
func (b *Broker) publishMessage(topicARN string, payload string) error {
	_, err := b.snsClient.PublishWithContext(b.ctx, &sns.PublishInput{
		Message:  aws.String(payload),
		TopicArn: aws.String(topicARN),
	})
	return err
}

func (b *Broker) publishResult(arn, topic string, res *Result) {
	logger := b.logger.WithFields(logrus.Fields{"job": res.ID, "topic": topic})
	if arn == "" {
		logger.Debug("Topic disabled, result not published")
		return
	}
	data, err := json.Marshal(res)
	if err != nil {
		logger.Error("Result could not be encoded: ", err)
		return
	}
	if err := b.publishMessage(arn, string(data)); err != nil {
		logger.Error("Result could not be published: ", err)
		return
	}
	logger.Debug("Result published")
}

// invalidMessage forwards an undecodable message body to the error topic.
func (b *Broker) invalidMessage(body string, cause error) {
	if b.errorTopicARN == "" {
		b.logger.WithField("topic", "error[disabled]").Warn(cause)
		return
	}
	if err := b.publishMessage(b.errorTopicARN, body); err != nil {
		b.logger.Error("Invalid message could not be sent to the error topic: ", err)
	}
}

// Stop cancels the job in progress and blocks until the broker terminates.
func (b *Broker) Stop() {
	b.cancel()
	ch := make(chan struct{})
	b.stop <- ch
	<-ch
}
