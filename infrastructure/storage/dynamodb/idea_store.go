package dynamodb

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/felixgeelhaar/ideaflow/domain/idea"
)

// API is the subset of the DynamoDB client used by IdeaStore.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	dynamodb.ScanAPIClient
}

// IdeaStore is a DynamoDB-backed implementation of idea.Store.
//
// Updates are conditional puts on "version = :expected"; a failed
// condition means another writer committed first.
type IdeaStore struct {
	client       API
	tableName    string
	queryTimeout time.Duration
	now          func() time.Time
}

// NewIdeaStore creates a new DynamoDB idea store.
func NewIdeaStore(client *Client) *IdeaStore {
	return NewIdeaStoreFromAPI(client.DynamoDB(), client.config.TableName, client.config.QueryTimeout)
}

// NewIdeaStoreFromAPI creates an idea store over any API implementation.
func NewIdeaStoreFromAPI(api API, tableName string, queryTimeout time.Duration) *IdeaStore {
	if tableName == "" {
		tableName = DefaultConfig().TableName
	}
	if queryTimeout <= 0 {
		queryTimeout = DefaultConfig().QueryTimeout
	}
	return &IdeaStore{
		client:       api,
		tableName:    tableName,
		queryTimeout: queryTimeout,
		now:          time.Now,
	}
}

func itemKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberS{Value: id},
	}
}

// Get retrieves an idea by ID.
func (s *IdeaStore) Get(ctx context.Context, id string) (*idea.Idea, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	return s.get(ctx, id)
}

func (s *IdeaStore) get(ctx context.Context, id string) (*idea.Idea, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            itemKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, s.wrapError(err)
	}
	if result.Item == nil {
		return nil, idea.NotFound(id)
	}

	var i idea.Idea
	if err := attributevalue.UnmarshalMap(result.Item, &i); err != nil {
		return nil, err
	}
	return &i, nil
}

// Insert assigns a fresh ID and version 1, then stores the idea.
func (s *IdeaStore) Insert(ctx context.Context, i *idea.Idea) (*idea.Idea, error) {
	if i == nil {
		return nil, idea.ErrInvalidIdea
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	stored := idea.Prepare(i, uuid.NewString(), s.now().UTC())
	av, err := attributevalue.MarshalMap(stored)
	if err != nil {
		return nil, err
	}

	expr, err := expression.NewBuilder().
		WithCondition(expression.AttributeNotExists(expression.Name("id"))).
		Build()
	if err != nil {
		return nil, err
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(s.tableName),
		Item:                      av,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return nil, idea.ErrInvalidID
		}
		return nil, s.wrapError(err)
	}

	return stored, nil
}

// versionCondition requires the stored version to equal expected.
func versionCondition(expected int) (expression.Expression, error) {
	return expression.NewBuilder().
		WithCondition(expression.Name("version").Equal(expression.Value(expected))).
		Build()
}

// ApplyIfVersionMatches mutates the idea if its version equals expected.
func (s *IdeaStore) ApplyIfVersionMatches(ctx context.Context, id string, expected int, mutate idea.Mutator) (*idea.Idea, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	current, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	next, err := idea.Apply(current, expected, mutate, s.now().UTC())
	if err != nil {
		return nil, err
	}

	av, err := attributevalue.MarshalMap(next)
	if err != nil {
		return nil, err
	}

	expr, err := versionCondition(expected)
	if err != nil {
		return nil, err
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(s.tableName),
		Item:                      av,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			if _, err := s.get(ctx, id); err != nil {
				return nil, err
			}
			return nil, idea.Conflict(id, expected)
		}
		return nil, s.wrapError(err)
	}

	return next, nil
}

// Remove deletes an idea and reports whether it existed.
func (s *IdeaStore) Remove(ctx context.Context, id string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	result, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    aws.String(s.tableName),
		Key:          itemKey(id),
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return false, s.wrapError(err)
	}
	return len(result.Attributes) > 0, nil
}

// List returns ideas matching the filter. The status and owner criteria
// run server-side as a scan filter; ordering and paging happen client-side.
func (s *IdeaStore) List(ctx context.Context, filter idea.ListFilter) ([]*idea.Idea, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	scanInput := &dynamodb.ScanInput{
		TableName:      aws.String(s.tableName),
		ConsistentRead: aws.Bool(true),
	}

	expr, ok, err := buildScanFilter(filter)
	if err != nil {
		return nil, err
	}
	if ok {
		scanInput.FilterExpression = expr.Filter()
		scanInput.ExpressionAttributeNames = expr.Names()
		scanInput.ExpressionAttributeValues = expr.Values()
	}

	var ideas []*idea.Idea
	paginator := dynamodb.NewScanPaginator(s.client, scanInput)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, s.wrapError(err)
		}

		for _, item := range page.Items {
			var i idea.Idea
			if err := attributevalue.UnmarshalMap(item, &i); err != nil {
				return nil, err
			}
			ideas = append(ideas, &i)
		}
	}

	return idea.Select(ideas, filter), nil
}

// buildScanFilter converts the status and owner criteria to a filter
// expression. It reports false when the filter has no criteria.
func buildScanFilter(filter idea.ListFilter) (expression.Expression, bool, error) {
	var conds []expression.ConditionBuilder

	if len(filter.Status) > 0 {
		values := make([]expression.OperandBuilder, len(filter.Status))
		for i, st := range filter.Status {
			values[i] = expression.Value(string(st))
		}
		conds = append(conds, expression.Name("status").In(values[0], values[1:]...))
	}

	if filter.Owner != "" {
		conds = append(conds, expression.Name("owner").Equal(expression.Value(filter.Owner)))
	}

	if len(conds) == 0 {
		return expression.Expression{}, false, nil
	}

	cond := conds[0]
	if len(conds) > 1 {
		cond = expression.And(conds[0], conds[1], conds[2:]...)
	}

	expr, err := expression.NewBuilder().WithFilter(cond).Build()
	if err != nil {
		return expression.Expression{}, false, err
	}
	return expr, true, nil
}

// wrapError wraps DynamoDB errors with package errors.
func (s *IdeaStore) wrapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(ErrOperationTimeout, err)
	}

	var throughputExceeded *types.ProvisionedThroughputExceededException
	if errors.As(err, &throughputExceeded) {
		return errors.Join(ErrOperationTimeout, err)
	}

	return errors.Join(ErrConnectionFailed, err)
}

var _ idea.Store = (*IdeaStore)(nil)
