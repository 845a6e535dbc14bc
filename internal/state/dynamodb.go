package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/opcoord/opcoord/internal/core"
)

// DynamoDBStore implements Store on AWS DynamoDB.
// Single-table design with PK/SK pattern:
//   - Idempotency records: PK="IDEM#<key>", SK="RECORD"
//
// Expiry uses the native DynamoDB TTL attribute ("ttl"), so Sweep is a no-op;
// the conditional create still checks the ttl attribute because native TTL
// eviction can lag behind the expiry time.
type DynamoDBStore struct {
	client    *dynamodb.Client
	tableName string
}

// NewDynamoDBStore creates a new DynamoDB store.
func NewDynamoDBStore(client *dynamodb.Client, tableName string) *DynamoDBStore {
	return &DynamoDBStore{client: client, tableName: tableName}
}

// EnsureTable creates the table if it doesn't exist and enables TTL.
func (s *DynamoDBStore) EnsureTable(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.tableName),
	})
	if err == nil {
		return nil
	}

	_, err = s.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(s.tableName),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("PK"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("SK"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("PK"), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String("SK"), KeyType: types.KeyTypeRange},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	waiter := dynamodb.NewTableExistsWaiter(s.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.tableName),
	}, 2*time.Minute); err != nil {
		return fmt.Errorf("failed waiting for table: %w", err)
	}

	_, err = s.client.UpdateTimeToLive(ctx, &dynamodb.UpdateTimeToLiveInput{
		TableName: aws.String(s.tableName),
		TimeToLiveSpecification: &types.TimeToLiveSpecification{
			Enabled:       aws.Bool(true),
			AttributeName: aws.String("ttl"),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to enable TTL: %w", err)
	}
	return nil
}

func recordPK(key string) string {
	return "IDEM#" + key
}

// dynamoRecord is the stored item shape. Result travels as a string so it
// stays readable in the console.
type dynamoRecord struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	State     string `dynamodbav:"state"`
	Result    string `dynamodbav:"result,omitempty"`
	CreatedAt int64  `dynamodbav:"created_at"`
	TTL       int64  `dynamodbav:"ttl"`
}

func (s *DynamoDBStore) CreateInProgress(ctx context.Context, key string, expiresAt time.Time) error {
	now := time.Now()

	item, err := attributevalue.MarshalMap(dynamoRecord{
		PK:        recordPK(key),
		SK:        "RECORD",
		State:     RecordInProgress,
		CreatedAt: now.UnixMilli(),
		TTL:       expiresAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK) OR #ttl < :now"),
		ExpressionAttributeNames: map[string]string{
			"#ttl": "ttl",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
		},
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return core.ErrKeyExists
		}
		return fmt.Errorf("failed to create in-progress record: %w", err)
	}
	return nil
}

func (s *DynamoDBStore) Complete(ctx context.Context, key string, result json.RawMessage, expiresAt time.Time) error {
	item, err := attributevalue.MarshalMap(dynamoRecord{
		PK:        recordPK(key),
		SK:        "RECORD",
		State:     RecordCompleted,
		Result:    string(result),
		CreatedAt: time.Now().UnixMilli(),
		TTL:       expiresAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to complete record: %w", err)
	}
	return nil
}

func (s *DynamoDBStore) Get(ctx context.Context, key string) (*Record, error) {
	resp, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: recordPK(key)},
			"SK": &types.AttributeValueMemberS{Value: "RECORD"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	if resp.Item == nil {
		return nil, core.ErrNotFound
	}

	var stored dynamoRecord
	if err := attributevalue.UnmarshalMap(resp.Item, &stored); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}

	record := &Record{
		Key:       key,
		State:     stored.State,
		CreatedAt: time.UnixMilli(stored.CreatedAt),
		ExpiresAt: time.Unix(stored.TTL, 0),
	}
	if stored.Result != "" {
		record.Result = json.RawMessage(stored.Result)
	}

	// Lazy expiry: native TTL eviction lags, so filter here too.
	if record.Expired(time.Now()) {
		return nil, core.ErrNotFound
	}
	return record, nil
}

func (s *DynamoDBStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: recordPK(key)},
			"SK": &types.AttributeValueMemberS{Value: "RECORD"},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

// Sweep is a no-op: DynamoDB evicts expired items via the table TTL.
func (s *DynamoDBStore) Sweep(context.Context, time.Time) (int, error) {
	return 0, nil
}

func (s *DynamoDBStore) Ping(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.tableName),
	})
	if err != nil {
		return fmt.Errorf("dynamodb ping: %w", err)
	}
	return nil
}

func (s *DynamoDBStore) Close() error { return nil }
