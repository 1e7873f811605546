package storage

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"

	logx "tailbot/pkg/logx"
)

// Single-table layout, composite key (pk S, sk S):
//   - pk "posted", sk "<unixmilli-13>#<flightkey>": the posting timeline,
//     queried newest first for LastPosted/RecentPosted
//   - pk "flight#<flightkey>", sk "v1": the dedup marker for WasPosted
//
// Record writes both items in one transaction so the marker and the
// timeline never disagree.

// dynamoAPI is the client slice the store needs; tests fake it.
type dynamoAPI interface {
	TransactWriteItemsWithContext(aws.Context, *dynamodb.TransactWriteItemsInput, ...request.Option) (*dynamodb.TransactWriteItemsOutput, error)
	GetItemWithContext(aws.Context, *dynamodb.GetItemInput, ...request.Option) (*dynamodb.GetItemOutput, error)
	QueryWithContext(aws.Context, *dynamodb.QueryInput, ...request.Option) (*dynamodb.QueryOutput, error)
}

type dynamoStore struct {
	client dynamoAPI
	table  string
	log    logx.Logger
}

func openDynamo(cfg Config, log logx.Logger) (Store, error) {
	table := strings.TrimSpace(cfg.Table)
	if table == "" {
		return nil, fmt.Errorf("dynamodb table is required")
	}
	awsCfg := aws.NewConfig()
	if r := strings.TrimSpace(cfg.Region); r != "" {
		awsCfg = awsCfg.WithRegion(r)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, err
	}
	return &dynamoStore{client: dynamodb.New(sess), table: table, log: log}, nil
}

func (s *dynamoStore) Close() error { return nil }

func (s *dynamoStore) Record(ctx context.Context, pf PostedFlight) error {
	if pf.PostedAt.IsZero() {
		pf.PostedAt = time.Now()
	}
	key := pf.Key()
	item := itemFrom(pf)

	timeline := map[string]*dynamodb.AttributeValue{
		"pk": {S: aws.String("posted")},
		"sk": {S: aws.String(timelineSK(pf.PostedAt, key))},
	}
	marker := map[string]*dynamodb.AttributeValue{
		"pk": {S: aws.String("flight#" + key)},
		"sk": {S: aws.String("v1")},
	}
	for k, v := range item {
		timeline[k] = v
		marker[k] = v
	}

	_, err := s.client.TransactWriteItemsWithContext(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []*dynamodb.TransactWriteItem{
			{Put: &dynamodb.Put{TableName: aws.String(s.table), Item: timeline}},
			{Put: &dynamodb.Put{TableName: aws.String(s.table), Item: marker}},
		},
	})
	return err
}

func (s *dynamoStore) WasPosted(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	out, err := s.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]*dynamodb.AttributeValue{
			"pk": {S: aws.String("flight#" + key)},
			"sk": {S: aws.String("v1")},
		},
	})
	if err != nil {
		return false, err
	}
	return len(out.Item) > 0, nil
}

func (s *dynamoStore) LastPosted(ctx context.Context) (*PostedFlight, error) {
	rows, err := s.RecentPosted(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (s *dynamoStore) RecentPosted(ctx context.Context, limit int) ([]PostedFlight, error) {
	if limit <= 0 {
		return nil, nil
	}
	out, err := s.client.QueryWithContext(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("pk = :pk"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":pk": {S: aws.String("posted")},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int64(int64(limit)),
	})
	if err != nil {
		return nil, err
	}
	return hydrate(out.Items)
}

// timelineSK keeps lexicographic order equal to time order.
func timelineSK(at time.Time, key string) string {
	return fmt.Sprintf("%013d#%s", at.UnixMilli(), key)
}

func itemFrom(pf PostedFlight) map[string]*dynamodb.AttributeValue {
	f := pf.Flight
	return map[string]*dynamodb.AttributeValue{
		"date":        {S: aws.String(f.Date)},
		"origin":      {S: aws.String(f.Origin)},
		"destination": {S: aws.String(f.Destination)},
		"departure":   {S: aws.String(f.Departure)},
		"arrival":     {S: aws.String(f.Arrival)},
		"duration":    {S: aws.String(f.Duration)},
		"post_id":     {S: aws.String(pf.PostID)},
		"posted_at":   {N: aws.String(strconv.FormatInt(pf.PostedAt.UnixMilli(), 10))},
	}
}

func hydrate(items []map[string]*dynamodb.AttributeValue) ([]PostedFlight, error) {
	out := make([]PostedFlight, len(items))
	for i, item := range items {
		if v, ok := item["date"]; ok && v.S != nil {
			out[i].Flight.Date = *v.S
		}
		if v, ok := item["origin"]; ok && v.S != nil {
			out[i].Flight.Origin = *v.S
		}
		if v, ok := item["destination"]; ok && v.S != nil {
			out[i].Flight.Destination = *v.S
		}
		if v, ok := item["departure"]; ok && v.S != nil {
			out[i].Flight.Departure = *v.S
		}
		if v, ok := item["arrival"]; ok && v.S != nil {
			out[i].Flight.Arrival = *v.S
		}
		if v, ok := item["duration"]; ok && v.S != nil {
			out[i].Flight.Duration = *v.S
		}
		if v, ok := item["post_id"]; ok && v.S != nil {
			out[i].PostID = *v.S
		}
		if v, ok := item["posted_at"]; ok && v.N != nil {
			ms, err := strconv.ParseInt(*v.N, 10, 64)
			if err != nil {
				return nil, err
			}
			out[i].PostedAt = time.UnixMilli(ms)
		}
	}
	return out, nil
}
