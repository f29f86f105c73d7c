package broker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/aws/aws-sdk-go/service/sns"
	"github.com/aws/aws-sdk-go/service/sns/snsiface"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	queueURL  = "http://localhost:4576/queue/jobs"
	resultARN = "arn:aws:sns:us-east-1:123456789012:results"
	errorARN  = "arn:aws:sns:us-east-1:123456789012:errors"
)

type sqsMock struct {
	mock.Mock
	sqsiface.SQSAPI
	queue chan *sqs.Message
}

func (m *sqsMock) ReceiveMessageWithContext(ctx aws.Context, input *sqs.ReceiveMessageInput, opts ...request.Option) (*sqs.ReceiveMessageOutput, error) {
	select {
	case msg := <-m.queue:
		return &sqs.ReceiveMessageOutput{Messages: []*sqs.Message{msg}}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(time.Millisecond):
		return &sqs.ReceiveMessageOutput{}, nil
	}
}

func (m *sqsMock) DeleteMessageWithContext(ctx aws.Context, input *sqs.DeleteMessageInput, opts ...request.Option) (*sqs.DeleteMessageOutput, error) {
	args := m.Called(input)
	return args.Get(0).(*sqs.DeleteMessageOutput), args.Error(1)
}

type snsMock struct {
	mock.Mock
	snsiface.SNSAPI
}

func (m *snsMock) PublishWithContext(ctx aws.Context, input *sns.PublishInput, opts ...request.Option) (*sns.PublishOutput, error) {
	args := m.Called(aws.StringValue(input.TopicArn), aws.StringValue(input.Message))
	return args.Get(0).(*sns.PublishOutput), args.Error(1)
}

type dynamock struct {
	mock.Mock
	dynamodbiface.DynamoDBAPI
}

func (m *dynamock) GetItemWithContext(ctx aws.Context, input *dynamodb.GetItemInput, opts ...request.Option) (*dynamodb.GetItemOutput, error) {
	args := m.Called(aws.StringValue(input.Key["ID"].S))
	return args.Get(0).(*dynamodb.GetItemOutput), args.Error(1)
}

func (m *dynamock) PutItemWithContext(ctx aws.Context, input *dynamodb.PutItemInput, opts ...request.Option) (*dynamodb.PutItemOutput, error) {
	args := m.Called(aws.StringValue(input.Item["ID"].S))
	return args.Get(0).(*dynamodb.PutItemOutput), args.Error(1)
}

// jobTable keeps DynamoDB items in memory, keyed by ID.
type jobTable struct {
	dynamodbiface.DynamoDBAPI
	items map[string]map[string]*dynamodb.AttributeValue
}

func (m *jobTable) GetItemWithContext(ctx aws.Context, input *dynamodb.GetItemInput, opts ...request.Option) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{Item: m.items[aws.StringValue(input.Key["ID"].S)]}, nil
}

func (m *jobTable) PutItemWithContext(ctx aws.Context, input *dynamodb.PutItemInput, opts ...request.Option) (*dynamodb.PutItemOutput, error) {
	m.items[aws.StringValue(input.Item["ID"].S)] = input.Item
	return &dynamodb.PutItemOutput{}, nil
}

func newTestBroker(sqsClient *sqsMock, snsClient *snsMock, dynamo dynamodbiface.DynamoDBAPI) (*Broker, prometheus.Counter) {
	logger, _ := test.NewNullLogger()
	incoming := prometheus.NewCounter(prometheus.CounterOpts{Name: "incoming_jobs_total"})
	return New(logger, sqsClient, queueURL, snsClient, resultARN, errorARN, dynamo, "jobs", incoming), incoming
}

func message(body, receipt string) *sqs.Message {
	return &sqs.Message{Body: aws.String(body), ReceiptHandle: aws.String(receipt)}
}

func deleteInput(receipt string) *sqs.DeleteMessageInput {
	return &sqs.DeleteMessageInput{QueueUrl: aws.String(queueURL), ReceiptHandle: aws.String(receipt)}
}

func TestParseJob(t *testing.T) {
	job, err := ParseJob([]byte(`{"id": "j1", "source": "s3://borders/2/NOR.geojson", "options": "kmh=80&startpoint=1&startpoint=2&ccw=true"}`))
	require.NoError(t, err)
	assert.Equal(t, "j1", job.ID)

	o, err := job.Overrides()
	require.NoError(t, err)
	require.NotNil(t, o.SpeedKmh)
	assert.Equal(t, 80.0, *o.SpeedKmh)
	assert.Equal(t, []float64{1, 2}, o.StartPoint)
	require.NotNil(t, o.CCW)
	assert.True(t, *o.CCW)
	assert.Nil(t, o.SplitFrames)

	job, err = ParseJob([]byte(`{"source": "AUT.kml"}`))
	require.NoError(t, err)
	assert.Len(t, job.ID, 36)

	tests := map[string]string{
		"not json":       `source=AUT.kml`,
		"no source":      `{"id": "j2"}`,
		"unknown option": `{"source": "AUT.kml", "options": "speed=80"}`,
		"invalid value":  `{"source": "AUT.kml", "options": "kmh=fast"}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseJob([]byte(body))
			assert.Equal(t, InvalidJobErr, errors.Cause(err))
		})
	}
}

func TestBroker_Handle(t *testing.T) {
	sqsClient, snsClient, dynamo := &sqsMock{}, &snsMock{}, &dynamock{}
	b, incoming := newTestBroker(sqsClient, snsClient, dynamo)

	dynamo.On("GetItemWithContext", "j1").Return(&dynamodb.GetItemOutput{}, nil)
	dynamo.On("PutItemWithContext", "j1").Return(&dynamodb.PutItemOutput{}, nil)
	sqsClient.On("DeleteMessageWithContext", deleteInput("r1")).Return(&sqs.DeleteMessageOutput{}, nil)
	snsClient.On("PublishWithContext", resultARN, mock.Anything).Return(&sns.PublishOutput{}, nil)

	b.Subscribe(func(ctx context.Context, job *Job) (*Result, error) {
		assert.Equal(t, "AUT.kml", job.Source)
		return &Result{Name: "AUT", Parts: 3, Files: []string{"AUTpt1.esp"}}, nil
	})
	b.handle(message(`{"id": "j1", "source": "AUT.kml"}`, "r1"))

	sqsClient.AssertExpectations(t)
	dynamo.AssertExpectations(t)
	require.Len(t, snsClient.Calls, 1)
	res := &Result{}
	require.NoError(t, json.Unmarshal([]byte(snsClient.Calls[0].Arguments.String(1)), res))
	assert.Equal(t, &Result{ID: "j1", Source: "AUT.kml", Status: StatusDone, Name: "AUT", Parts: 3, Files: []string{"AUTpt1.esp"}}, res)
	assert.Equal(t, 1.0, testutil.ToFloat64(incoming))
}

func TestBroker_Handle_Failure(t *testing.T) {
	sqsClient, snsClient := &sqsMock{}, &snsMock{}
	b, _ := newTestBroker(sqsClient, snsClient, nil)

	sqsClient.On("DeleteMessageWithContext", deleteInput("r1")).Return(&sqs.DeleteMessageOutput{}, nil)
	sqsClient.On("DeleteMessageWithContext", deleteInput("r2")).Return(&sqs.DeleteMessageOutput{}, nil)
	snsClient.On("PublishWithContext", errorARN, mock.Anything).Return(&sns.PublishOutput{}, nil)

	b.Subscribe(func(ctx context.Context, job *Job) (*Result, error) {
		if job.ID == "panic" {
			panic("boom")
		}
		return &Result{Warnings: []string{"substituted"}}, errors.New("no elevation data")
	})
	b.handle(message(`{"id": "j1", "source": "AUT.kml"}`, "r1"))
	b.handle(message(`{"id": "panic", "source": "AUT.kml"}`, "r2"))

	sqsClient.AssertExpectations(t)
	require.Len(t, snsClient.Calls, 2)
	res := &Result{}
	require.NoError(t, json.Unmarshal([]byte(snsClient.Calls[0].Arguments.String(1)), res))
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, "no elevation data", res.Error)
	assert.Equal(t, []string{"substituted"}, res.Warnings)

	res = &Result{}
	require.NoError(t, json.Unmarshal([]byte(snsClient.Calls[1].Arguments.String(1)), res))
	assert.Contains(t, res.Error, "handler panic! boom")
}

func TestBroker_Handle_Invalid(t *testing.T) {
	sqsClient, snsClient := &sqsMock{}, &snsMock{}
	b, _ := newTestBroker(sqsClient, snsClient, nil)

	body := `{"id": "j1"}`
	sqsClient.On("DeleteMessageWithContext", deleteInput("r1")).Return(&sqs.DeleteMessageOutput{}, nil)
	snsClient.On("PublishWithContext", errorARN, body).Return(&sns.PublishOutput{}, nil)

	b.Subscribe(func(ctx context.Context, job *Job) (*Result, error) {
		t.Error("invalid job handled")
		return nil, nil
	})
	b.handle(message(body, "r1"))

	sqsClient.AssertExpectations(t)
	snsClient.AssertExpectations(t)
}

func TestBroker_Handle_Seen(t *testing.T) {
	sqsClient, snsClient, dynamo := &sqsMock{}, &snsMock{}, &dynamock{}
	b, _ := newTestBroker(sqsClient, snsClient, dynamo)

	dynamo.On("GetItemWithContext", "j1").Return(&dynamodb.GetItemOutput{
		Item: map[string]*dynamodb.AttributeValue{"ID": {S: aws.String("j1")}},
	}, nil)
	sqsClient.On("DeleteMessageWithContext", deleteInput("r1")).Return(&sqs.DeleteMessageOutput{}, nil)

	b.Subscribe(func(ctx context.Context, job *Job) (*Result, error) {
		t.Error("known job handled again")
		return nil, nil
	})
	b.handle(message(`{"id": "j1", "source": "AUT.kml"}`, "r1"))

	sqsClient.AssertExpectations(t)
	dynamo.AssertNotCalled(t, "PutItemWithContext", "j1")
	snsClient.AssertNotCalled(t, "PublishWithContext", mock.Anything, mock.Anything)
}

func TestBroker_Handle_RepositoryDown(t *testing.T) {
	sqsClient, snsClient, dynamo := &sqsMock{}, &snsMock{}, &dynamock{}
	b, _ := newTestBroker(sqsClient, snsClient, dynamo)

	dynamo.On("GetItemWithContext", "j1").Return((*dynamodb.GetItemOutput)(nil), errors.New("unavailable"))
	dynamo.On("PutItemWithContext", "j1").Return((*dynamodb.PutItemOutput)(nil), errors.New("unavailable"))
	sqsClient.On("DeleteMessageWithContext", deleteInput("r1")).Return(&sqs.DeleteMessageOutput{}, nil)
	snsClient.On("PublishWithContext", resultARN, mock.Anything).Return(&sns.PublishOutput{}, nil)

	handled := false
	b.Subscribe(func(ctx context.Context, job *Job) (*Result, error) {
		handled = true
		return nil, nil
	})
	b.handle(message(`{"id": "j1", "source": "AUT.kml"}`, "r1"))
	assert.True(t, handled)
}

func TestBroker_Handle_InterruptedRedelivered(t *testing.T) {
	table := &jobTable{items: map[string]map[string]*dynamodb.AttributeValue{}}
	body := `{"id": "j1", "source": "AUT.kml"}`

	// The first broker is stopped while the job runs.
	sqsClient, snsClient := &sqsMock{}, &snsMock{}
	b, _ := newTestBroker(sqsClient, snsClient, table)
	b.Subscribe(func(ctx context.Context, job *Job) (*Result, error) {
		b.cancel()
		return nil, ctx.Err()
	})
	b.handle(message(body, "r1"))

	sqsClient.AssertNotCalled(t, "DeleteMessageWithContext", mock.Anything)
	snsClient.AssertNotCalled(t, "PublishWithContext", mock.Anything, mock.Anything)
	assert.Empty(t, table.items)

	// The redelivered message is handled by the next broker.
	sqsClient, snsClient = &sqsMock{}, &snsMock{}
	sqsClient.On("DeleteMessageWithContext", deleteInput("r2")).Return(&sqs.DeleteMessageOutput{}, nil)
	snsClient.On("PublishWithContext", resultARN, mock.Anything).Return(&sns.PublishOutput{}, nil)
	b, _ = newTestBroker(sqsClient, snsClient, table)
	handled := 0
	b.Subscribe(func(ctx context.Context, job *Job) (*Result, error) {
		handled++
		return &Result{Name: "AUT"}, nil
	})
	b.handle(message(body, "r2"))
	assert.Equal(t, 1, handled)
	sqsClient.AssertExpectations(t)
	snsClient.AssertExpectations(t)
	assert.Contains(t, table.items, "j1")

	// Once handled, a further redelivery is skipped.
	sqsClient.On("DeleteMessageWithContext", deleteInput("r3")).Return(&sqs.DeleteMessageOutput{}, nil)
	b.handle(message(body, "r3"))
	assert.Equal(t, 1, handled)
	sqsClient.AssertExpectations(t)
}

func TestBroker_Run(t *testing.T) {
	sqsClient := &sqsMock{queue: make(chan *sqs.Message, 2)}
	snsClient := &snsMock{}
	b, _ := newTestBroker(sqsClient, snsClient, nil)

	deleted := make(chan struct{}, 2)
	sqsClient.On("DeleteMessageWithContext", mock.Anything).Return(&sqs.DeleteMessageOutput{}, nil).Run(func(mock.Arguments) {
		deleted <- struct{}{}
	})
	snsClient.On("PublishWithContext", resultARN, mock.Anything).Return(&sns.PublishOutput{}, nil)

	var order []string
	b.Subscribe(func(ctx context.Context, job *Job) (*Result, error) {
		order = append(order, job.ID)
		return nil, nil
	})
	sqsClient.queue <- message(`{"id": "j1", "source": "AUT.kml"}`, "r1")
	sqsClient.queue <- message(`{"id": "j2", "source": "NOR.kml"}`, "r2")

	go b.Run()
	for i := 0; i < 2; i++ {
		select {
		case <-deleted:
		case <-time.After(5 * time.Second):
			t.Fatal("timeout waiting for jobs")
		}
	}
	b.Stop()

	assert.Equal(t, []string{"j1", "j2"}, order)
	snsClient.AssertNumberOfCalls(t, "PublishWithContext", 2)
}
