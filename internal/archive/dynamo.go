package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/ignite/bulkmail/internal/analytics"
)

// cycleTTL bounds how long cycle history is kept.
const cycleTTL = 90 * 24 * time.Hour

// DynamoAPI is the subset of the DynamoDB client used here.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// CycleItem is one cycle as stored in DynamoDB.
type CycleItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	Provider   string `dynamodbav:"Provider"`
	Begin      string `dynamodbav:"Begin,omitempty"`
	End        string `dynamodbav:"End,omitempty"`
	Events     int    `dynamodbav:"Events"`
	Applied    int    `dynamodbav:"Applied"`
	Cursor     string `dynamodbav:"Cursor,omitempty"`
	Skipped    string `dynamodbav:"Skipped,omitempty"`
	Error      string `dynamodbav:"Error,omitempty"`
	DurationMS int64  `dynamodbav:"DurationMs"`
	TTL        int64  `dynamodbav:"TTL"`
}

// CycleLog records analytics cycles keyed by provider and end time.
type CycleLog struct {
	client DynamoAPI
	table  string
	now    func() time.Time
}

// NewCycleLog creates a cycle log on table.
func NewCycleLog(client DynamoAPI, table string) *CycleLog {
	return &CycleLog{client: client, table: table, now: time.Now}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// RecordCycle stores res.
func (l *CycleLog) RecordCycle(ctx context.Context, res analytics.CycleResult) error {
	recorded := l.now().UTC()
	item := CycleItem{
		PK:         "CYCLE#" + res.Provider,
		SK:         recorded.Format(time.RFC3339Nano),
		Provider:   res.Provider,
		Begin:      formatTime(res.Begin),
		End:        formatTime(res.End),
		Events:     res.Events,
		Applied:    res.Applied,
		Cursor:     formatTime(res.Cursor),
		Skipped:    res.Skipped,
		DurationMS: res.Duration.Milliseconds(),
		TTL:        recorded.Add(cycleTTL).Unix(),
	}
	if res.Err != nil {
		item.Error = res.Err.Error()
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshaling cycle item: %w", err)
	}
	_, err = l.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(l.table),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("putting cycle item to DynamoDB: %w", err)
	}
	return nil
}

// Recent returns up to limit cycles for provider, newest first.
func (l *CycleLog) Recent(ctx context.Context, provider string, limit int32) ([]CycleItem, error) {
	out, err := l.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(l.table),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: "CYCLE#" + provider},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("querying cycles: %w", err)
	}
	var items []CycleItem
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
		return nil, fmt.Errorf("unmarshaling cycles: %w", err)
	}
	return items, nil
}
