// Package dynamodb implements a report.Sink that stores every RunRecord as
// a DynamoDB item.
//
// Table schema:
//   - Partition key: session_id (string)
//   - Sort key: run_id (string)
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name annbench-runs \
//	  --attribute-definitions AttributeName=session_id,AttributeType=S AttributeName=run_id,AttributeType=S \
//	  --key-schema AttributeName=session_id,KeyType=HASH AttributeName=run_id,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
package dynamodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/vecbench/report"
)

// ErrDuplicateRecord is returned when a record with the same run id was
// already written for the session.
var ErrDuplicateRecord = errors.New("dynamodb: duplicate run record")

// Client is the subset of the DynamoDB API used by Sink.
type Client interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

var _ report.Sink = (*Sink)(nil)

// Sink writes one item per record. Writes are conditional on the run id not
// existing yet, so retried writes never overwrite a stored record.
type Sink struct {
	client    Client
	tableName string
}

// NewSink creates a sink writing to tableName.
func NewSink(client Client, tableName string) *Sink {
	return &Sink{client: client, tableName: tableName}
}

// Write stores r.
func (s *Sink) Write(ctx context.Context, r report.RunRecord) error {
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                Item(r),
		ConditionExpression: aws.String("attribute_not_exists(run_id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("%w: %s", ErrDuplicateRecord, r.RunID)
		}
		return fmt.Errorf("dynamodb: put record %s: %w", r.RunID, err)
	}
	return nil
}

// Close is a no-op; the client is owned by the caller.
func (s *Sink) Close() error { return nil }

// Item converts a record into DynamoDB attributes. Unset resource usage
// fields are omitted.
func Item(r report.RunRecord) map[string]types.AttributeValue {
	item := make(map[string]types.AttributeValue)
	for _, f := range r.Fields() {
		switch v := f.Value.(type) {
		case nil:
			continue
		case string:
			item[f.Name] = &types.AttributeValueMemberS{Value: v}
		case bool:
			item[f.Name] = &types.AttributeValueMemberBOOL{Value: v}
		default:
			item[f.Name] = &types.AttributeValueMemberN{Value: f.String()}
		}
	}
	return item
}
