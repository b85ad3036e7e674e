package dynamodb

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/vecbench/report"
	"github.com/hupe1980/vecbench/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockDDBClient is an in-memory DynamoDB mock for testing.
type mockDDBClient struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
	err   error
}

func newMockDDBClient() *mockDDBClient {
	return &mockDDBClient{items: make(map[string]map[string]types.AttributeValue)}
}

func (m *mockDDBClient) PutItem(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}

	session := params.Item["session_id"].(*types.AttributeValueMemberS).Value
	run := params.Item["run_id"].(*types.AttributeValueMemberS).Value
	key := session + ":" + run

	if aws.ToString(params.ConditionExpression) == "attribute_not_exists(run_id)" {
		if _, exists := m.items[key]; exists {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("condition failed")}
		}
	}

	m.items[key] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

func record(id string) report.RunRecord {
	return report.RunRecord{
		RunID:        id,
		SessionID:    "s1",
		Timestamp:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Provider:     "flat",
		SearchParams: "",
		Concurrency:  2,
		K:            10,
		QPS:          1234.5,
		Recall:       1,
		Partial:      true,
	}
}

func TestSinkWrite(t *testing.T) {
	client := newMockDDBClient()
	sink := NewSink(client, "runs")

	require.NoError(t, sink.Write(context.Background(), record("r1")))
	require.NoError(t, sink.Write(context.Background(), record("r2")))
	require.NoError(t, sink.Close())
	require.Len(t, client.items, 2)

	item := client.items["s1:r1"]
	assert.Equal(t, "flat", item["provider"].(*types.AttributeValueMemberS).Value)
	assert.Equal(t, "1234.5", item["qps"].(*types.AttributeValueMemberN).Value)
	assert.Equal(t, "2", item["concurrency"].(*types.AttributeValueMemberN).Value)
	assert.True(t, item["partial"].(*types.AttributeValueMemberBOOL).Value)
	assert.NotContains(t, item, "build_peak_rss_bytes")
}

func TestSinkDuplicate(t *testing.T) {
	sink := NewSink(newMockDDBClient(), "runs")
	require.NoError(t, sink.Write(context.Background(), record("r1")))

	err := sink.Write(context.Background(), record("r1"))
	assert.ErrorIs(t, err, ErrDuplicateRecord)
}

func TestSinkClientError(t *testing.T) {
	client := newMockDDBClient()
	client.err = errors.New("throttled")

	err := NewSink(client, "runs").Write(context.Background(), record("r1"))
	assert.ErrorContains(t, err, "throttled")
	assert.NotErrorIs(t, err, ErrDuplicateRecord)
}

func TestItemUsage(t *testing.T) {
	r := record("r1")
	r.BuildUsage = &resource.Usage{PeakRSSBytes: 2048, MajorFaults: 3}

	item := Item(r)
	assert.Equal(t, "2048", item["build_peak_rss_bytes"].(*types.AttributeValueMemberN).Value)
	assert.Equal(t, "3", item["build_major_faults"].(*types.AttributeValueMemberN).Value)
}
