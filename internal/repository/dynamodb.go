package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"careline-agent/internal/domain"
)

const (
	pkPrefix = "CONV#"
	skCtx    = "CTX#"

	// Fixed-width UTC layout so updatedAt comparisons work lexicographically
	// in scan filter expressions.
	dynamoTimeLayout = "2006-01-02T15:04:05.000Z"
)

// dynamodbAPI is the minimal DynamoDB interface required by dynamoStore.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// dynamoStore keeps one CTX# item per conversation identity in a single
// table. Apply is a consistent read-modify-write; the per-identity turn lock
// upstream makes that safe.
type dynamoStore struct {
	api       dynamodbAPI
	tableName string
}

func newDynamoStore(api dynamodbAPI, tableName string) (*dynamoStore, error) {
	if api == nil {
		return nil, errors.New("repository: dynamodb api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &dynamoStore{api: api, tableName: tableName}, nil
}

func convPK(identity string) string {
	return pkPrefix + identity
}

func (s *dynamoStore) Get(ctx context.Context, identity string) (*domain.ConversationContext, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: convPK(identity)},
			"SK": &types.AttributeValueMemberS{Value: skCtx},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: Get %q: %w", identity, err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.NewConversationContext(identity), nil
	}
	c, err := itemToContext(out.Item)
	if err != nil {
		return nil, fmt.Errorf("repository: Get %q: %w", identity, err)
	}
	return c, nil
}

func (s *dynamoStore) Apply(ctx context.Context, identity string, patch domain.ContextPatch) (*domain.ConversationContext, error) {
	current, err := s.Get(ctx, identity)
	if err != nil {
		return nil, err
	}
	applyPatch(current, patch, time.Now().UTC())

	item, err := contextItem(current)
	if err != nil {
		return nil, fmt.Errorf("repository: Apply %q: %w", identity, err)
	}
	if _, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	}); err != nil {
		return nil, fmt.Errorf("repository: Apply %q: %w", identity, err)
	}
	return current, nil
}

func (s *dynamoStore) ListIdle(ctx context.Context, states []domain.State, cutoff time.Time) ([]string, error) {
	if len(states) == 0 {
		return nil, nil
	}

	values := map[string]types.AttributeValue{
		":sk":     &types.AttributeValueMemberS{Value: skCtx},
		":cutoff": &types.AttributeValueMemberS{Value: cutoff.UTC().Format(dynamoTimeLayout)},
	}
	placeholders := make([]string, 0, len(states))
	for i, st := range states {
		ph := ":s" + strconv.Itoa(i)
		placeholders = append(placeholders, ph)
		values[ph] = &types.AttributeValueMemberS{Value: string(st)}
	}
	filter := fmt.Sprintf("SK = :sk AND updatedAt < :cutoff AND #st IN (%s)",
		strings.Join(placeholders, ", "))

	var idle []string
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.api.Scan(ctx, &dynamodb.ScanInput{
			TableName:                 aws.String(s.tableName),
			FilterExpression:          aws.String(filter),
			ExpressionAttributeNames:  map[string]string{"#st": "state", "#id": "identity"},
			ExpressionAttributeValues: values,
			ProjectionExpression:      aws.String("#id"),
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("repository: ListIdle scan: %w", err)
		}
		for _, item := range out.Items {
			identity, err := strAttr(item, "identity")
			if err != nil {
				return nil, fmt.Errorf("repository: ListIdle: %w", err)
			}
			idle = append(idle, identity)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return idle, nil
}

func (s *dynamoStore) Delete(ctx context.Context, identity string) error {
	_, err := s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: convPK(identity)},
			"SK": &types.AttributeValueMemberS{Value: skCtx},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: Delete %q: %w", identity, err)
	}
	return nil
}

func (s *dynamoStore) Close() error { return nil }

func contextItem(c *domain.ConversationContext) (map[string]types.AttributeValue, error) {
	meta, err := json.Marshal(c.Meta)
	if err != nil {
		return nil, fmt.Errorf("encode meta: %w", err)
	}
	return map[string]types.AttributeValue{
		"PK":           &types.AttributeValueMemberS{Value: convPK(c.Identity)},
		"SK":           &types.AttributeValueMemberS{Value: skCtx},
		"identity":     &types.AttributeValueMemberS{Value: c.Identity},
		"state":        &types.AttributeValueMemberS{Value: string(c.State)},
		"meta":         &types.AttributeValueMemberS{Value: string(meta)},
		"lastUserText": &types.AttributeValueMemberS{Value: c.LastUserText},
		"lastBotText":  &types.AttributeValueMemberS{Value: c.LastBotText},
		"interactions": &types.AttributeValueMemberN{Value: strconv.Itoa(c.InteractionCount)},
		"createdAt":    &types.AttributeValueMemberS{Value: c.CreatedAt.UTC().Format(dynamoTimeLayout)},
		"updatedAt":    &types.AttributeValueMemberS{Value: c.UpdatedAt.UTC().Format(dynamoTimeLayout)},
	}, nil
}

func itemToContext(item map[string]types.AttributeValue) (*domain.ConversationContext, error) {
	identity, err := strAttr(item, "identity")
	if err != nil {
		return nil, err
	}
	state, err := strAttr(item, "state")
	if err != nil {
		return nil, err
	}
	rawMeta, err := strAttr(item, "meta")
	if err != nil {
		return nil, err
	}
	meta := map[string]any{}
	if rawMeta != "" {
		if err := json.Unmarshal([]byte(rawMeta), &meta); err != nil {
			return nil, fmt.Errorf("decode meta: %w", err)
		}
	}
	lastUser, _ := strAttr(item, "lastUserText") // allow empty
	lastBot, _ := strAttr(item, "lastBotText")   // allow empty
	interactions, err := intAttr(item, "interactions")
	if err != nil {
		return nil, err
	}
	createdAt, err := timeAttr(item, "createdAt")
	if err != nil {
		return nil, err
	}
	updatedAt, err := timeAttr(item, "updatedAt")
	if err != nil {
		return nil, err
	}

	return &domain.ConversationContext{
		Identity:         identity,
		State:            domain.State(state),
		Meta:             meta,
		LastUserText:     lastUser,
		LastBotText:      lastBot,
		InteractionCount: interactions,
		CreatedAt:        createdAt,
		UpdatedAt:        updatedAt,
	}, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("parse attribute %q: %w", key, err)
	}
	return parsed, nil
}

func timeAttr(item map[string]types.AttributeValue, key string) (time.Time, error) {
	raw, err := strAttr(item, key)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(dynamoTimeLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse attribute %q: %w", key, err)
	}
	return t, nil
}
