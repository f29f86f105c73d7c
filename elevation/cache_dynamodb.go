package elevation

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
)

// DynamoDBCache shares elevations between workers through a DynamoDB table
// with a string hash key named "key".
type DynamoDBCache struct {
	DynamoDB dynamodbiface.DynamoDBAPI
	Table    string
}

var _ Cache = (*DynamoDBCache)(nil)

func NewDynamoDBCache(client dynamodbiface.DynamoDBAPI, table string) *DynamoDBCache {
	return &DynamoDBCache{
		DynamoDB: client,
		Table:    table,
	}
}

type cacheItem struct {
	Key       string  `dynamodbav:"key"`
	Elevation float64 `dynamodbav:"elevation"`
}

func (c *DynamoDBCache) Get(ctx context.Context, key string) (float64, bool, error) {
	var input = &dynamodb.GetItemInput{
		TableName: aws.String(c.Table),
		Key: map[string]*dynamodb.AttributeValue{
			"key": {S: aws.String(key)},
		},
	}
	output, err := c.DynamoDB.GetItemWithContext(ctx, input)
	if err != nil {
		return 0, false, err
	}
	if output.Item == nil {
		return 0, false, nil
	}
	item := &cacheItem{}
	if err := dynamodbattribute.UnmarshalMap(output.Item, item); err != nil {
		return 0, false, err
	}
	return item.Elevation, true, nil
}

func (c *DynamoDBCache) Put(ctx context.Context, key string, value float64) error {
	item, err := dynamodbattribute.MarshalMap(&cacheItem{Key: key, Elevation: value})
	if err != nil {
		return err
	}
	input := &dynamodb.PutItemInput{
		TableName: aws.String(c.Table),
		Item:      item,
	}
	_, err = c.DynamoDB.PutItemWithContext(ctx, input)
	return err
}

func (c *DynamoDBCache) Close() error { return nil }
