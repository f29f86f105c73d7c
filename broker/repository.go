package broker

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/pkg/errors"
)

// repositoryJob is the record kept for every job handled.
type repositoryJob struct {
	JobID    string `dynamodbav:"ID"`
	Source   string `dynamodbav:"source"`
	Received string `dynamodbav:"received"`
}

// repository remembers the jobs handled so redeliveries are not processed
// twice. It is disabled when no table is configured.
type repository struct {
	client dynamodbiface.DynamoDBAPI
	table  string
	now    func() time.Time
}

func (r *repository) enabled() bool {
	return r.client != nil && r.table != ""
}

// seenBefore decides whether a job is known to this repository.
func (r *repository) seenBefore(ctx context.Context, job *Job) (bool, error) {
	if !r.enabled() {
		return false, nil
	}
	item, err := r.getRecord(ctx, job.ID)
	if err != nil {
		return false, err
	}
	return item != nil, nil
}

// store records a handled job. Interrupted jobs are not recorded so their
// redelivery runs them again.
func (r *repository) store(ctx context.Context, job *Job) error {
	if !r.enabled() {
		return nil
	}
	return r.putRecord(ctx, job)
}

func (r *repository) getRecord(ctx context.Context, ID string) (*repositoryJob, error) {
	output, err := r.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.table),
		Key: map[string]*dynamodb.AttributeValue{
			"ID": {S: aws.String(ID)},
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "cannot read job record")
	}
	if output.Item == nil {
		return nil, nil
	}
	rec := &repositoryJob{}
	if err := dynamodbattribute.UnmarshalMap(output.Item, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *repository) putRecord(ctx context.Context, job *Job) error {
	now := time.Now
	if r.now != nil {
		now = r.now
	}
	item, err := dynamodbattribute.MarshalMap(&repositoryJob{
		JobID:    job.ID,
		Source:   job.Source,
		Received: now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	_, err = r.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item:      item,
	})
	return errors.Wrap(err, "cannot store job record")
}
