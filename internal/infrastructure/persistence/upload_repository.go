package persistence

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"

	"github.com/molpadia/molparelay/internal/domain/entity"
)

// UploadRepository keeps upload records in a DynamoDB table keyed by Id.
type UploadRepository struct {
	db        dynamodbiface.DynamoDBAPI
	tableName string
}

func NewUploadRepository(sess *session.Session, tableName string) *UploadRepository {
	return NewUploadRepositoryWithClient(dynamodb.New(sess), tableName)
}

func NewUploadRepositoryWithClient(db dynamodbiface.DynamoDBAPI, tableName string) *UploadRepository {
	return &UploadRepository{db: db, tableName: tableName}
}

// NewSession creates an AWS session, optionally pinned to a region.
func NewSession(region string) (*session.Session, error) {
	cfg := aws.NewConfig()
	if region != "" {
		cfg = cfg.WithRegion(region)
	}
	return session.NewSession(cfg)
}

// Get the upload by the upload ID. A missing record yields nil without error.
func (r *UploadRepository) GetById(ctx context.Context, id string) (*entity.Upload, error) {
	out, err := r.db.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		Key:       map[string]*dynamodb.AttributeValue{"Id": {S: aws.String(id)}},
		TableName: aws.String(r.tableName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get upload %s: %w", id, err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var upload *entity.Upload
	if err := dynamodbattribute.UnmarshalMap(out.Item, &upload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal upload %s: %w", id, err)
	}
	return upload, nil
}

// Save an upload record to the persistence.
func (r *UploadRepository) Save(ctx context.Context, upload *entity.Upload) error {
	av, err := dynamodbattribute.MarshalMap(upload)
	if err != nil {
		return fmt.Errorf("failed to marshal upload %s: %w", upload.Id, err)
	}
	_, err = r.db.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		Item:      av,
		TableName: aws.String(r.tableName),
	})
	if err != nil {
		return fmt.Errorf("failed to save upload %s: %w", upload.Id, err)
	}
	return nil
}
